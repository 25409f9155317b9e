package commands

import (
	"fmt"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/teranos/qntx-caption/document"
	"github.com/teranos/qntx-caption/errors"
	"github.com/teranos/qntx-caption/pointer"
)

// PointerCmd groups the JSON Pointer tools
var PointerCmd = &cobra.Command{
	Use:   "pointer",
	Short: "Evaluate, set and delete (Relative) JSON Pointers",
	Long: `pointer — Work with JSON Pointers and Relative JSON Pointers.

Absolute pointers start at the document root ("/slides/0/image").
Relative pointers climb from a location first ("1/image" from
"/slides/0/caption" is "/slides/0/image"); pass that location with --at.

Examples:
  caption pointer eval /image --doc page.json
  caption pointer eval 1/image --doc page.json --at /slides/0/caption
  caption pointer set /alt '"A red bicycle"' --doc page.json --write
  caption pointer delete /slides/2 --doc page.yaml
  caption pointer escape "a/b~c"
  caption pointer valid 2/image`,
}

var (
	pointerDoc   string
	pointerAt    string
	pointerWrite bool
)

var pointerEvalCmd = &cobra.Command{
	Use:   "eval <pointer>",
	Short: "Print the value a pointer selects",
	Args:  cobra.ExactArgs(1),
	RunE:  runPointerEval,
}

var pointerSetCmd = &cobra.Command{
	Use:   "set <pointer> <value>",
	Short: "Set the value at a pointer (value is JSON, or a plain string)",
	Args:  cobra.ExactArgs(2),
	RunE:  runPointerSet,
}

var pointerDeleteCmd = &cobra.Command{
	Use:   "delete <pointer>",
	Short: "Delete the value at a pointer",
	Args:  cobra.ExactArgs(1),
	RunE:  runPointerDelete,
}

var pointerEscapeCmd = &cobra.Command{
	Use:   "escape <token>",
	Short: "Escape a reference token (~ to ~0, / to ~1)",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintln(cmd.OutOrStdout(), pointer.Escape(args[0]))
	},
}

var pointerUnescapeCmd = &cobra.Command{
	Use:   "unescape <token>",
	Short: "Unescape a reference token (~1 to /, ~0 to ~)",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintln(cmd.OutOrStdout(), pointer.Unescape(args[0]))
	},
}

var pointerValidCmd = &cobra.Command{
	Use:   "valid <pointer>",
	Short: "Check pointer syntax",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := pointer.Parse(args[0])
		if err != nil {
			return err
		}
		kind := "absolute"
		if p.Relative {
			kind = fmt.Sprintf("relative, climbs %d", p.Depth)
		}
		pterm.Success.Printf("%s is a valid pointer (%s)\n", args[0], kind)
		return nil
	},
}

func init() {
	for _, c := range []*cobra.Command{pointerEvalCmd, pointerSetCmd, pointerDeleteCmd} {
		c.Flags().StringVar(&pointerDoc, "doc", "", "Document file (.json, .yaml, .toml)")
		c.Flags().StringVar(&pointerAt, "at", "", "Absolute location relative pointers start from")
	}
	for _, c := range []*cobra.Command{pointerSetCmd, pointerDeleteCmd} {
		c.Flags().BoolVarP(&pointerWrite, "write", "w", false, "Write the result back to the document (keeps .back1-3)")
	}

	PointerCmd.AddCommand(pointerEvalCmd)
	PointerCmd.AddCommand(pointerSetCmd)
	PointerCmd.AddCommand(pointerDeleteCmd)
	PointerCmd.AddCommand(pointerEscapeCmd)
	PointerCmd.AddCommand(pointerUnescapeCmd)
	PointerCmd.AddCommand(pointerValidCmd)
}

func runPointerEval(cmd *cobra.Command, args []string) error {
	doc, err := requireDoc(pointerDoc)
	if err != nil {
		return err
	}

	v, ok, err := pointer.EvaluateFrom(args[0], doc, pointerAt)
	if err != nil {
		if errors.IsInvalidPointer(err) && pointerAt == "" {
			return errors.WithHint(err, "relative pointers need --at")
		}
		return err
	}
	if !ok {
		return errors.Newf("%s: no value in %s", args[0], pointerDoc)
	}

	fmt.Fprintln(cmd.OutOrStdout(), formatJSON(v))
	return nil
}

func runPointerSet(cmd *cobra.Command, args []string) error {
	doc, err := requireDoc(pointerDoc)
	if err != nil {
		return err
	}
	abs, err := absolute(args[0], pointerAt)
	if err != nil {
		return err
	}

	doc, ok, err := pointer.SetOK(doc, abs, parseValue(args[1]))
	if err != nil {
		return err
	}
	if !ok {
		pterm.Warning.Printf("%s: nothing set, its parent does not exist\n", abs)
		return nil
	}
	return emitDocument(cmd, doc)
}

func runPointerDelete(cmd *cobra.Command, args []string) error {
	doc, err := requireDoc(pointerDoc)
	if err != nil {
		return err
	}
	abs, err := absolute(args[0], pointerAt)
	if err != nil {
		return err
	}

	if _, found, _ := pointer.Evaluate(abs, doc); !found {
		pterm.Warning.Printf("%s: nothing to delete\n", abs)
		return nil
	}
	doc, ok, err := pointer.Delete(doc, abs)
	if err != nil {
		return err
	}
	if !ok {
		pterm.Warning.Printf("%s: nothing to delete\n", abs)
		return nil
	}
	return emitDocument(cmd, doc)
}

// emitDocument writes doc back with --write, or prints it in the
// document's own format
func emitDocument(cmd *cobra.Command, doc any) error {
	if pointerWrite {
		if _, err := document.Save(pointerDoc, doc); err != nil {
			return err
		}
		pterm.Success.Printf("Updated %s\n", pointerDoc)
		return nil
	}

	format, err := document.FormatOf(pointerDoc)
	if err != nil {
		return err
	}
	data, err := document.Encode(doc, format)
	if err != nil {
		return err
	}
	_, err = cmd.OutOrStdout().Write(data)
	return err
}
