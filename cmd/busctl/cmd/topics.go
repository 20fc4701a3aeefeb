package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/underbots/ipcbus/internal/topicmgr"
	"github.com/underbots/ipcbus/internal/topics"
)

var topicsFormat string

// topicDisplay represents a topic for display purposes
type topicDisplay struct {
	Name        string   `json:"name"`
	Address     string   `json:"address"`
	PayloadType string   `json:"payload_type"`
	Fields      []string `json:"fields,omitempty"`
	Description string   `json:"description"`
}

var topicsCmd = &cobra.Command{
	Use:   "topics",
	Short: "List known topics",
	Long: `List every topic in the catalogue with its payload type and the address
its endpoint binds to under the current configuration.

Examples:
  busctl topics
  busctl topics --format json
  busctl topics --prefix inproc://dev_`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		overrides := make(map[string]string)
		for name, t := range cfg.Topics {
			if t.Address != "" {
				overrides[name] = t.Address
			}
		}
		book := topicmgr.NewAddressBook(cfg.AddressPrefix, overrides)

		var list []topicDisplay
		for _, d := range topics.All() {
			list = append(list, topicDisplay{
				Name:        d.Name(),
				Address:     book.Resolve(d.Name()),
				PayloadType: d.PayloadType().String(),
				Fields:      d.Fields(),
				Description: d.Description(),
			})
		}

		switch topicsFormat {
		case "json":
			return displayTopicsJSON(cmd.OutOrStdout(), list)
		case "table":
			displayTopicsTable(cmd.OutOrStdout(), list)
			return nil
		default:
			return fmt.Errorf("invalid format %q (valid formats: table, json)", topicsFormat)
		}
	},
}

func displayTopicsTable(out io.Writer, list []topicDisplay) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	defer w.Flush()

	fmt.Fprintln(w, "NAME\tTYPE\tADDRESS\tFIELDS\tDESCRIPTION")
	for _, t := range list {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			t.Name, t.PayloadType, t.Address, strings.Join(t.Fields, ","), t.Description)
	}
}

func displayTopicsJSON(out io.Writer, list []topicDisplay) error {
	output := struct {
		Topics []topicDisplay `json:"topics"`
		Count  int            `json:"count"`
	}{
		Topics: list,
		Count:  len(list),
	}

	encoder := json.NewEncoder(out)
	encoder.SetIndent("", "  ")
	return encoder.Encode(output)
}

func init() {
	topicsCmd.Flags().StringVarP(&topicsFormat, "format", "f", "table", "output format (table, json)")
	rootCmd.AddCommand(topicsCmd)
}
