// Copyright © 2018 NAME HERE <EMAIL ADDRESS>
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	logging "github.com/ipfs/go-log"
	"github.com/spf13/cobra"
)

var (
	cfgFile         string
	logLvlName      string
	configNamespace string
	apiAddress      string
)

var logLevels = []string{"critical", "error", "warning", "notice", "info", "debug"}

func checkLogLevel(lvlName string) error {
	for _, lvl := range logLevels {
		if lvl == lvlName {
			return nil
		}
	}
	return fmt.Errorf("Invalid log level %v. Must be one of %s.", lvlName, strings.Join(logLevels, ", "))
}

func printJSON(v interface{}) error {
	bits, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("error encoding output: %v", err)
	}
	fmt.Println(string(bits))
	return nil
}

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "ownable",
	Short: "Ownable interface",
	Long:  `Ownable hosts entities with a single transferable owner (ERC-173) and an auditable transfer history`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := checkLogLevel(logLvlName); err != nil {
			return err
		}
		if err := logging.SetLogLevel("*", strings.ToUpper(logLvlName)); err != nil {
			return fmt.Errorf("unknown log level %s: %v", logLvlName, err)
		}
		return nil
	},
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&logLvlName, "log-level", "L", "error", "Log level")
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "path to a toml or yaml config file")
	rootCmd.PersistentFlags().StringVarP(&configNamespace, "namespace", "n", "default", "a global config namespace (useful for running multiple nodes)")
	rootCmd.PersistentFlags().StringVarP(&apiAddress, "api", "a", "http://127.0.0.1:8080", "address of a running node's rpc server")
}
