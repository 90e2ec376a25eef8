package cmd

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"

	"github.com/aetherlabs/aetherchain/foundation/blockchain/database"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/spf13/cobra"
)

var incentiveCmd = &cobra.Command{
	Use:   "incentive",
	Short: "Print the accumulated proposer incentive for your account.",
	Run:   incentiveRun,
}

func init() {
	rootCmd.AddCommand(incentiveCmd)
}

func incentiveRun(cmd *cobra.Command, args []string) {
	privateKey, err := crypto.LoadECDSA(getPrivateKeyPath())
	if err != nil {
		log.Fatal(err)
	}

	accountID := database.PublicKeyToAccountID(privateKey.PublicKey)
	fmt.Println("For Account:", accountID)

	resp, err := http.Get(fmt.Sprintf("%s/v1/incentive/%s", url, accountID))
	if err != nil {
		log.Fatal(err)
	}
	defer resp.Body.Close()

	var result struct {
		Account   string `json:"account"`
		Name      string `json:"name"`
		Incentive uint64 `json:"incentive"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		log.Fatal(err)
	}

	fmt.Println(result.Incentive)
}
