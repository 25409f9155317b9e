package commands

import (
	"bufio"
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/teranos/qntx-caption/caption"
	"github.com/teranos/qntx-caption/document"
	"github.com/teranos/qntx-caption/errors"
	"github.com/teranos/qntx-caption/logger"
)

// WatchCmd keeps a caption session in sync with a document file
var WatchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Track a document and caption its field as it changes",
	Long: `watch — Follow a document file and drive a caption session from it.

Every save re-resolves the image pointer. With --auto a caption is requested
whenever a new image appears and the field is empty. Edits to the field in
the file are picked up as text edits.

Commands on stdin:
  c, caption   request a caption now
  x, cancel    discard the outstanding request
  s, status    print the session state
  q, quit      stop watching

Examples:
  caption watch --doc page.json --at /alt --image /hero --auto --write
  caption watch --doc slides.yaml --at /slides/0/caption --image 1/image`,
	RunE: runWatch,
}

var (
	watchFlags    fieldFlags
	watchAuto     bool
	watchDebounce time.Duration
)

func init() {
	watchFlags.register(WatchCmd)
	WatchCmd.Flags().BoolVar(&watchAuto, "auto", false, "Caption automatically when an image appears and the field is empty")
	WatchCmd.Flags().DurationVar(&watchDebounce, "debounce", document.DefaultDebounce, "Wait this long after the last change before reloading")
}

func runWatch(cmd *cobra.Command, args []string) error {
	doc, err := requireDoc(watchFlags.doc)
	if err != nil {
		return err
	}
	installation := map[string]any{}
	if watchAuto {
		installation["autoCaption"] = true
	}
	fs, err := setupField(watchFlags, installation)
	if err != nil {
		return err
	}
	if watchFlags.write && fs.location == "" {
		return errors.WithHint(errors.New("--write needs the field location"), "pass --at or set field.location")
	}

	watcher, err := document.NewWatcher(watchFlags.doc, watchDebounce, logger.ComponentLogger("document"))
	if err != nil {
		return err
	}
	defer watcher.Stop()

	sink := &documentSink{path: watchFlags.doc, location: fs.location, doc: doc, beforeWrite: watcher.MarkOwnWrite}
	opts := caption.Options{
		Params:      fs.params,
		Requester:   fs.requester,
		InitialText: textAt(doc, fs.location),
		Logger:      fs.log,
		OnChange:    printTransitions(fs),
	}
	if watchFlags.write {
		opts.Sink = sink
	}
	s := caption.New(opts)
	defer s.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	apply := func(doc any) error {
		sink.replace(doc)
		if text := textAt(doc, fs.location); text != s.State().Text {
			s.SetText(text)
		}
		err := s.DocumentChanged(ctx, fs.snapshot(doc))
		reportTarget(s)
		return err
	}
	watcher.OnChange(apply)

	if err := apply(doc); err != nil {
		pterm.Warning.Printf("No image: %v\n", err)
	}
	watcher.Start()
	pterm.Info.Printf("Watching %s (field %s, image %s, provider %s)\n",
		watchFlags.doc, fs.location, fs.params.ImagePointer(), fs.provider)

	quit := make(chan struct{})
	go readCommands(cmd, s, quit)

	select {
	case <-ctx.Done():
	case <-quit:
	}
	pterm.Info.Println("Stopping")
	return nil
}

func reportTarget(s *caption.Session) {
	if t, ok := s.Target(); ok {
		pterm.Debug.Printf("Image: %s\n", t.URL)
	}
}

// printTransitions reports session state changes as they happen. Calls are
// serialised by the session, so prev needs no lock.
func printTransitions(fs *fieldSetup) func(caption.State) {
	var prev caption.State
	return func(next caption.State) {
		switch {
		case next.Status == caption.Captioning && prev.Status != caption.Captioning:
			pterm.Info.Printf("Captioning %s\n", next.Target)
		case prev.Status == caption.Captioning && next.Status == caption.Idle && next.Failure != nil:
			pterm.Error.Printf("%s (%s)\n", next.Failure.Message, next.Failure.Category)
		case prev.Status == caption.Captioning && next.Status == caption.Idle && next.Text != prev.Text:
			pterm.Success.Printf("Caption: %s\n", next.Text)
			reportSchema(fs.schema, next.Text)
		case prev.Status == caption.Captioning && next.Status == caption.Idle:
			pterm.Info.Println("Caption request ended without a new caption")
		}
		prev = next
	}
}

func readCommands(cmd *cobra.Command, s *caption.Session, quit chan<- struct{}) {
	scanner := bufio.NewScanner(cmd.InOrStdin())
	for scanner.Scan() {
		switch strings.TrimSpace(strings.ToLower(scanner.Text())) {
		case "c", "caption":
			if err := s.StartCaption(); err != nil {
				pterm.Warning.Println(err.Error())
			}
		case "x", "cancel":
			s.Cancel()
		case "s", "status":
			pterm.Info.Println(s.State().String())
		case "q", "quit":
			close(quit)
			return
		case "":
		default:
			pterm.Warning.Println("Commands: c(aption), x (cancel), s(tatus), q(uit)")
		}
	}
}
