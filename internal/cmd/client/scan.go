package client

import (
	"fmt"
	"unicode/utf8"

	"github.com/spf13/cobra"

	"github.com/rzbill/strand/internal/inspect"
)

// NewLogCommand constructs the `log` command group.
func NewLogCommand() *cobra.Command {
	logCmd := &cobra.Command{Use: "log", Short: "Log buffer inspection"}
	logCmd.AddCommand(newLogScanCommand())
	return logCmd
}

func newLogScanCommand() *cobra.Command {
	scanCmd := &cobra.Command{
		Use:   "scan <file>",
		Short: "Decode the frames of a log buffer file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			expr, _ := cmd.Flags().GetString("filter")
			filter, err := inspect.NewFilter(expr)
			if err != nil {
				return fmt.Errorf("invalid --filter: %w", err)
			}
			frames, err := inspect.ScanFile(args[0])
			if err != nil {
				return err
			}
			matched := 0
			for _, f := range frames {
				if !filter.Eval(f) {
					continue
				}
				matched++
				printFrame(f)
			}
			fmt.Printf("%d frames, %d matched\n", len(frames), matched)
			return nil
		},
	}
	scanCmd.Flags().String("filter", "", "CEL expression over frame fields (term_id, stream_position, is_pad, text, ...)")
	return scanCmd
}

func printFrame(f inspect.FrameInfo) {
	kind := "DATA"
	if f.IsPadding() {
		kind = "PAD"
	}
	fmt.Printf("pos=%d term=%d offset=%d %s flags=0x%02x len=%d session=%d stream=%d reserved=%d",
		f.StreamPosition, f.TermID, f.TermOffset, kind, f.Flags, f.FrameLength, f.SessionID, f.StreamID, f.ReservedValue)
	if !f.IsPadding() && len(f.Payload) > 0 {
		fmt.Printf(" payload=%s", payloadPreview(f.Payload))
	}
	fmt.Println()
}

func payloadPreview(payload []byte) string {
	const max = 48
	truncated := false
	if len(payload) > max {
		payload = payload[:max]
		truncated = true
	}
	out := string(payload)
	if !utf8.ValidString(out) {
		out = fmt.Sprintf("%x", payload)
	}
	if truncated {
		out += "..."
	}
	return out
}
