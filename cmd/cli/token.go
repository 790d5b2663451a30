package main

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strings"

	"github.com/spf13/cobra"
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Read token records",
}

var tokenGetCmd = &cobra.Command{
	Use:   "get <tokenId>",
	Short: "Show one token",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		endpoint := strings.TrimRight(apiURL, "/") + "/api/v2/tokens/" + url.PathEscape(args[0])
		return fetchAndPrint(cmd, endpoint)
	},
}

var tokenListCmd = &cobra.Command{
	Use:   "list <tokenId>...",
	Short: "Show several tokens",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ids, err := json.Marshal(args)
		if err != nil {
			return err
		}
		endpoint := strings.TrimRight(apiURL, "/") + "/api/v2/tokens?tokenIds=" + url.QueryEscape(string(ids))
		return fetchAndPrint(cmd, endpoint)
	},
}

var tokenTraitsCmd = &cobra.Command{
	Use:   "traits",
	Short: "List trait tokens",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return fetchAndPrint(cmd, strings.TrimRight(apiURL, "/")+"/api/v2/tokens/traits")
	},
}

func init() {
	tokenCmd.AddCommand(tokenGetCmd, tokenListCmd, tokenTraitsCmd)
}

func fetchAndPrint(cmd *cobra.Command, endpoint string) error {
	var resp json.RawMessage
	if err := doJSON(cmd.Context(), httpClient(), http.MethodGet, endpoint, nil, &resp); err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), resp)
}
