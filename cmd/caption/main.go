package main

import (
	"os"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/teranos/qntx-caption/cmd/caption/commands"
	"github.com/teranos/qntx-caption/errors"
	"github.com/teranos/qntx-caption/logger"
)

var rootCmd = &cobra.Command{
	Use:   "caption",
	Short: "caption - Relative JSON Pointers and image caption generation",
	Long: `caption - Locate images in content documents and generate captions for them.

A caption field points at an image link somewhere in its document with a
(Relative) JSON Pointer. caption evaluates that pointer, builds the image's
retrieval URL and asks a caption provider for alt text.

Available commands:
  pointer  - Evaluate, set and delete (Relative) JSON Pointers
  generate - Generate a caption for one field of a document
  watch    - Track a document and caption its field as it changes
  am       - Show and validate configuration
  version  - Show version information

Examples:
  caption pointer eval 1/image --doc page.json --at /slides/0/caption
  caption generate --doc page.json --at /alt --image /hero --write
  caption watch --doc page.yaml --at /alt --auto --write
  caption am show --format json`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		verbosity, _ := cmd.Flags().GetCount("verbose")
		return commands.InitLogging(verbosity)
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logger.Cleanup()
	},
}

func init() {
	rootCmd.PersistentFlags().CountP("verbose", "v", "Increase output verbosity (repeat for more detail: -v, -vv)")
	rootCmd.PersistentFlags().StringVar(&commands.ConfigPath, "config", "", "Read configuration from this file instead of the default cascade")

	rootCmd.AddCommand(commands.PointerCmd)
	rootCmd.AddCommand(commands.GenerateCmd)
	rootCmd.AddCommand(commands.WatchCmd)
	rootCmd.AddCommand(commands.AmCmd)
	rootCmd.AddCommand(commands.VersionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		pterm.Error.Println(err.Error())
		if hint := errors.FlattenHints(err); hint != "" {
			pterm.Info.Println(hint)
		}
		os.Exit(1)
	}
}
