package cmd

import (
	"encoding/json"
	"fmt"
	"io/ioutil"
	"path/filepath"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/spf13/cobra"
)

var (
	generateKeysCount  int
	generateKeysOutput string
	generateKeysPath   string
)

type KeySet struct {
	EcdsaHexPrivateKey string `json:"ecdsaHexPrivateKey"`
	EcdsaHexPublicKey  string `json:"ecdsaHexPublicKey"`
	Address            string `json:"address"`
}

func generateKeySet(numberOfKeys int) ([]*KeySet, error) {
	keys := make([]*KeySet, 0, numberOfKeys)
	for i := 0; i < numberOfKeys; i++ {
		ecdsaKey, err := crypto.GenerateKey()
		if err != nil {
			return nil, err
		}
		keys = append(keys, &KeySet{
			EcdsaHexPrivateKey: hexutil.Encode(crypto.FromECDSA(ecdsaKey)),
			EcdsaHexPublicKey:  hexutil.Encode(crypto.FromECDSAPub(&ecdsaKey.PublicKey)),
			Address:            crypto.PubkeyToAddress(ecdsaKey.PublicKey).Hex(),
		})
	}
	return keys, nil
}

// generateKeysCmd represents the generate-keys command
var generateKeysCmd = &cobra.Command{
	Use:   "generate-keys",
	Short: "Generate keys whose addresses can own entities",
	Long:  `The private key can be passed to deploy, transfer and renounce with --key.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		keys, err := generateKeySet(generateKeysCount)
		if err != nil {
			return err
		}

		switch generateKeysOutput {
		case "text":
			for i, k := range keys {
				fmt.Printf("================ Key %v ================\n", i+1)
				fmt.Printf("ecdsa: '%v'\necdsa public: '%v'\naddress: '%v'\n", k.EcdsaHexPrivateKey, k.EcdsaHexPublicKey, k.Address)
			}
		case "json":
			return printJSON(keys)
		case "json-file":
			keyJSON, err := json.Marshal(keys)
			if err != nil {
				return fmt.Errorf("error writing json %v", err)
			}
			err = ioutil.WriteFile(filepath.Join(generateKeysPath, "keys.json"), keyJSON, 0600)
			if err != nil {
				return fmt.Errorf("error writing file %v", err)
			}
		default:
			return fmt.Errorf("output=%v type is not supported", generateKeysOutput)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(generateKeysCmd)
	generateKeysCmd.Flags().IntVar(&generateKeysCount, "count", 1, "how many keys to generate")
	generateKeysCmd.Flags().StringVarP(&generateKeysOutput, "output", "o", "text", "format for keys output (default text): text, json, json-file")
	generateKeysCmd.Flags().StringVarP(&generateKeysPath, "path", "p", ".", "directory to store files if using json-file")
}
