package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/spf13/cobra"
)

var (
	rpcURL    string
	authToken string
)

type rpcRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
	ID      int           `json:"id"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *struct {
		Code    int         `json:"code"`
		Message string      `json:"message"`
		Data    interface{} `json:"data"`
	} `json:"error"`
}

func call(method string, params ...interface{}) error {
	if params == nil {
		params = []interface{}{}
	}
	payload, err := json.Marshal(rpcRequest{JSONRPC: "2.0", Method: method, Params: params, ID: 1})
	if err != nil {
		return err
	}
	req, err := http.NewRequest(http.MethodPost, rpcURL, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if authToken != "" {
		req.Header.Set("Authorization", "Bearer "+authToken)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	var decoded rpcResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	if decoded.Error != nil {
		return fmt.Errorf("%s (%d): %v", decoded.Error.Message, decoded.Error.Code, decoded.Error.Data)
	}
	var pretty bytes.Buffer
	if err := json.Indent(&pretty, decoded.Result, "", "  "); err != nil {
		fmt.Println(string(decoded.Result))
		return nil
	}
	fmt.Println(pretty.String())
	return nil
}

func main() {
	root := &cobra.Command{
		Use:           "rosca-cli",
		Short:         "Operator CLI for the rotating-savings circle ledger",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&rpcURL, "rpc", "http://127.0.0.1:8645", "JSON-RPC endpoint")
	root.PersistentFlags().StringVar(&authToken, "token", os.Getenv("ROSCA_RPC_TOKEN"), "Bearer token for mutating methods")

	root.AddCommand(
		&cobra.Command{
			Use:   "get",
			Short: "Show the circle state",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return call("circle_get")
			},
		},
		&cobra.Command{
			Use:   "member <address>",
			Short: "Show a member's reputation and penalties balance",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return call("circle_getMember", map[string]string{"member": args[0]})
			},
		},
		&cobra.Command{
			Use:   "balance <address>",
			Short: "Show the token balance for an address",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return call("token_balance", map[string]string{"address": args[0]})
			},
		},
		&cobra.Command{
			Use:   "join <address>",
			Short: "Confirm participation in the circle",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return call("circle_join", map[string]string{"caller": args[0]})
			},
		},
		&cobra.Command{
			Use:   "deposit <address>",
			Short: "Record the fixed deposit for the active cycle",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return call("circle_deposit", map[string]string{"caller": args[0]})
			},
		},
		&cobra.Command{
			Use:   "execute",
			Short: "Execute the next cycle (permissionless tick)",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return call("circle_executeCycle")
			},
		},
		&cobra.Command{
			Use:   "claim <address>",
			Short: "Withdraw the caller's positive penalties balance",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return call("circle_claim", map[string]string{"caller": args[0]})
			},
		},
		&cobra.Command{
			Use:   "pause <owner>",
			Short: "Pause the circle",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return call("circle_pause", map[string]string{"caller": args[0]})
			},
		},
		&cobra.Command{
			Use:   "unpause <owner>",
			Short: "Unpause the circle",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return call("circle_unpause", map[string]string{"caller": args[0]})
			},
		},
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
