package cmd

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"

	"github.com/spf13/cobra"
)

var hostileFraction string

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Print the chain status and the current finality requirement.",
	Run:   statusRun,
}

func init() {
	rootCmd.AddCommand(statusCmd)
	statusCmd.Flags().StringVar(&hostileFraction, "hostile", "0.3", "Assumed hostile compute fraction for finality.")
}

func statusRun(cmd *cobra.Command, args []string) {
	resp, err := http.Get(fmt.Sprintf("%s/v1/chain/status", url))
	if err != nil {
		log.Fatal(err)
	}
	defer resp.Body.Close()

	var status struct {
		HeadBlockHash string `json:"head_block_hash"`
		HeadHeight    uint64 `json:"head_height"`
		HeadWeight    uint64 `json:"head_weight"`
		CurrentTarget uint   `json:"current_target"`
		Uncommitted   int    `json:"uncommitted"`
		Orphans       int    `json:"orphans"`
		Checkpoints   int    `json:"checkpoints"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		log.Fatal(err)
	}

	fmt.Println("head:", status.HeadBlockHash)
	fmt.Println("height:", status.HeadHeight)
	fmt.Println("weight:", status.HeadWeight)
	fmt.Println("target bits:", status.CurrentTarget)
	fmt.Println("uncommitted:", status.Uncommitted)

	confResp, err := http.Get(fmt.Sprintf("%s/v1/confirmations/%s", url, hostileFraction))
	if err != nil {
		log.Fatal(err)
	}
	defer confResp.Body.Close()

	var conf struct {
		HostileFraction float64 `json:"hostile_fraction"`
		Confirmations   uint    `json:"confirmations"`
	}
	if err := json.NewDecoder(confResp.Body).Decode(&conf); err != nil {
		log.Fatal(err)
	}

	fmt.Printf("confirmations (hostile %.2f): %d\n", conf.HostileFraction, conf.Confirmations)
}
