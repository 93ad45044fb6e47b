package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"claimspotter/internal/loader"
	"claimspotter/internal/vocab"
)

func newVocabCmd() *cobra.Command {
	var (
		input string
		top   int
	)
	cmd := &cobra.Command{
		Use:   "vocab",
		Short: "Print word frequencies of a raw labeled file",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := fromCommand(cmd)
			if err != nil {
				return err
			}
			if input == "" {
				input = rt.cfg.Data.RawDataPath
			}
			raw, err := loader.ReadRaw(input)
			if err != nil {
				return err
			}
			data := make([]vocab.LabeledText, len(raw))
			for i, r := range raw {
				data[i] = vocab.LabeledText{Text: r.Text, Label: r.Label}
			}
			counts := vocab.Frequencies(data)
			if top > 0 && top < len(counts) {
				counts = counts[:top]
			}
			out := cmd.OutOrStdout()
			for _, wc := range counts {
				fmt.Fprintf(out, "%s\t%d\n", wc.Word, wc.Count)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&input, "input", "i", "", "raw JSON or CSV file (raw_data_path by default)")
	cmd.Flags().IntVar(&top, "top", 0, "print only the n most frequent words")
	return cmd
}
