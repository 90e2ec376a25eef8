package cmd

import (
	"bytes"
	"crypto/ecdsa"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/aetherlabs/aetherchain/foundation/blockchain/database"
	"github.com/aetherlabs/aetherchain/foundation/blockchain/veil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/spf13/cobra"
)

var (
	nonce      uint64
	descriptor string
	params     []string
	inputs     []string
	outputs    []string
	veiled     bool
)

// sendCmd represents the send command.
var sendCmd = &cobra.Command{
	Use:   "send",
	Short: "Sign and submit a command transaction",
	Run: func(cmd *cobra.Command, args []string) {
		privateKey, err := crypto.LoadECDSA(getPrivateKeyPath())
		if err != nil {
			log.Fatal(err)
		}

		sendWithDetails(privateKey)
	},
}

func init() {
	rootCmd.AddCommand(sendCmd)
	sendCmd.Flags().Uint64VarP(&nonce, "nonce", "n", 0, "Unique nonce for this sender.")
	sendCmd.Flags().StringVarP(&descriptor, "descriptor", "d", "", "Command descriptor, e.g. allocate.storage.")
	sendCmd.Flags().StringArrayVar(&params, "param", nil, "Command parameter as key=value. Repeatable.")
	sendCmd.Flags().StringArrayVar(&inputs, "input", nil, "Transaction input as txid:index. Repeatable.")
	sendCmd.Flags().StringArrayVar(&outputs, "output", nil, "Transaction output as kind:value. Repeatable.")
	sendCmd.Flags().BoolVar(&veiled, "veil", false, "Veil the command parameters.")
}

func sendWithDetails(privateKey *ecdsa.PrivateKey) {
	senderID := database.PublicKeyToAccountID(privateKey.PublicKey)

	command := database.Command{
		Descriptor: descriptor,
		Params:     parseParams(params),
	}

	tx, err := database.NewTx(senderID, nonce, command, parseInputs(inputs), parseOutputs(outputs))
	if err != nil {
		log.Fatal(err)
	}

	if veiled {
		provider, err := veil.NewMockProvider()
		if err != nil {
			log.Fatal(err)
		}
		commitment, attestation, err := provider.Commit(command.Params)
		if err != nil {
			log.Fatal(err)
		}
		tx = tx.WithVeil(commitment, attestation)
	}

	signedTx, err := tx.Sign(privateKey)
	if err != nil {
		log.Fatal(err)
	}

	data, err := json.Marshal(signedTx)
	if err != nil {
		log.Fatal(err)
	}

	resp, err := http.Post(fmt.Sprintf("%s/v1/tx/submit", url), "application/json", bytes.NewBuffer(data))
	if err != nil {
		log.Fatal(err)
	}
	defer resp.Body.Close()

	var result struct {
		Status string `json:"status"`
		TxID   string `json:"txid"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		log.Fatal(err)
	}

	fmt.Println(result.Status, result.TxID)
}

func parseParams(kvs []string) map[string]string {
	if len(kvs) == 0 {
		return nil
	}

	m := make(map[string]string, len(kvs))
	for _, kv := range kvs {
		key, value, found := strings.Cut(kv, "=")
		if !found {
			log.Fatalf("param %q must be key=value", kv)
		}
		m[key] = value
	}
	return m
}

func parseInputs(specs []string) []database.TxInput {
	var ins []database.TxInput
	for _, spec := range specs {
		txid, index, found := strings.Cut(spec, ":")
		if !found {
			log.Fatalf("input %q must be txid:index", spec)
		}
		idx, err := strconv.Atoi(index)
		if err != nil {
			log.Fatalf("input %q has a bad index: %s", spec, err)
		}
		ins = append(ins, database.TxInput{TxID: txid, OutputIndex: idx})
	}
	return ins
}

func parseOutputs(specs []string) []database.TxOutput {
	var outs []database.TxOutput
	for _, spec := range specs {
		kind, value, found := strings.Cut(spec, ":")
		if !found {
			log.Fatalf("output %q must be kind:value", spec)
		}
		v, err := strconv.ParseUint(value, 10, 64)
		if err != nil {
			log.Fatalf("output %q has a bad value: %s", spec, err)
		}
		outs = append(outs, database.TxOutput{Kind: kind, Value: v})
	}
	return outs
}
