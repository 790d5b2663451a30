package main

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/spf13/cobra"
)

var (
	composeMaster string
	composeTraits []string
)

var composeCmd = &cobra.Command{
	Use:   "compose",
	Short: "Compose trait layers into a master token image",
	Long: `Send the ordered trait list for a master token to PATCH /api/v2/token.

Layers are painted in the given order, so the last trait ends up on top.
The same trait id may be listed more than once.`,
	Example: "  traitforge compose --master 42 --traits 1,2,3",
	RunE:    runCompose,
}

func init() {
	composeCmd.Flags().StringVar(&composeMaster, "master", "", "master token id")
	composeCmd.Flags().StringSliceVar(&composeTraits, "traits", nil, "comma separated trait ids, bottom layer first")
	_ = composeCmd.MarkFlagRequired("master")
	_ = composeCmd.MarkFlagRequired("traits")
}

type composeRequest struct {
	MasterID string   `json:"masterId"`
	TraitIDs []string `json:"traitIds"`
}

func runCompose(cmd *cobra.Command, _ []string) error {
	req, err := buildComposeRequest(composeMaster, composeTraits)
	if err != nil {
		return err
	}

	var resp json.RawMessage
	endpoint := strings.TrimRight(apiURL, "/") + "/api/v2/token"
	if err := doJSON(cmd.Context(), httpClient(), http.MethodPatch, endpoint, req, &resp); err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), resp)
}

func buildComposeRequest(master string, traits []string) (composeRequest, error) {
	req := composeRequest{MasterID: strings.TrimSpace(master)}
	for _, t := range traits {
		if t = strings.TrimSpace(t); t != "" {
			req.TraitIDs = append(req.TraitIDs, t)
		}
	}
	if req.MasterID == "" || len(req.TraitIDs) == 0 {
		return req, errors.New("--master and at least one --traits id are required")
	}
	return req, nil
}
