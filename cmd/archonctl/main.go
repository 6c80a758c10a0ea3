// archonctl is the operator console for a running archon runtime: inspect
// tools, resolve pending permission requests, and read the audit trail.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"
)

var (
	flagAddr  string
	flagToken string
)

func main() {
	root := &cobra.Command{
		Use:          "archonctl",
		Short:        "Operator console for the archon runtime",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&flagAddr, "addr", envOr("ARCHON_ADDR", "http://localhost:8080"), "runtime base URL")
	root.PersistentFlags().StringVar(&flagToken, "token", os.Getenv("ARCHON_TOKEN"), "bearer token (or ARCHON_TOKEN)")

	root.AddCommand(
		loginCmd(),
		toolsCmd(),
		helpCmd(),
		pendingCmd(),
		decideCmd(),
		auditCmd(),
	)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func loginCmd() *cobra.Command {
	var username, password string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Obtain an operator token",
		RunE: func(cmd *cobra.Command, args []string) error {
			body, err := call(http.MethodPost, "/auth/token", map[string]string{
				"username": username,
				"password": password,
			})
			if err != nil {
				return err
			}
			return printJSON(body)
		},
	}
	cmd.Flags().StringVarP(&username, "username", "u", "", "operator username")
	cmd.Flags().StringVarP(&password, "password", "p", "", "operator password")
	_ = cmd.MarkFlagRequired("username")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}

func toolsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tools",
		Short: "List registered tools",
		RunE: func(cmd *cobra.Command, args []string) error {
			body, err := call(http.MethodGet, "/v1/tools", nil)
			if err != nil {
				return err
			}
			return printJSON(body)
		},
	}
}

func helpCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tool-help <name>",
		Short: "Show a tool's documentation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			body, err := call(http.MethodGet, "/v1/tools/"+args[0]+"/help", nil)
			if err != nil {
				return err
			}
			return printJSON(body)
		},
	}
}

func pendingCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "pending",
		Short: "List pending permission requests",
		RunE: func(cmd *cobra.Command, args []string) error {
			body, err := call(http.MethodGet, "/v1/permissions", nil)
			if err != nil {
				return err
			}
			return printJSON(body)
		},
	}
}

func decideCmd() *cobra.Command {
	var approve, deny bool
	var comment string
	cmd := &cobra.Command{
		Use:   "decide <request-id>",
		Short: "Approve or deny a pending permission request",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if approve == deny {
				return fmt.Errorf("pass exactly one of --approve or --deny")
			}
			_, err := call(http.MethodPost, "/v1/permissions/"+args[0]+"/decide", map[string]any{
				"approved": approve,
				"comment":  comment,
			})
			if err != nil {
				return err
			}
			fmt.Println("ok")
			return nil
		},
	}
	cmd.Flags().BoolVar(&approve, "approve", false, "grant the request")
	cmd.Flags().BoolVar(&deny, "deny", false, "refuse the request")
	cmd.Flags().StringVar(&comment, "comment", "", "optional reviewer comment")
	return cmd
}

func auditCmd() *cobra.Command {
	var clear bool
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Show (or clear) the runtime audit trail",
		RunE: func(cmd *cobra.Command, args []string) error {
			method := http.MethodGet
			if clear {
				method = http.MethodDelete
			}
			body, err := call(method, "/v1/audit", nil)
			if err != nil {
				return err
			}
			return printJSON(body)
		},
	}
	cmd.Flags().BoolVar(&clear, "clear", false, "clear the audit trail")
	return cmd
}

func call(method, path string, payload any) ([]byte, error) {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, flagAddr+path, body)
	if err != nil {
		return nil, err
	}
	if flagToken != "" {
		req.Header.Set("Authorization", "Bearer "+flagToken)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	client := &http.Client{Timeout: 30 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("%s %s: %s: %s", method, path, resp.Status, bytes.TrimSpace(data))
	}
	return data, nil
}

func printJSON(data []byte) error {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, data, "", "  "); err != nil {
		fmt.Println(string(data))
		return nil
	}
	fmt.Println(buf.String())
	return nil
}
