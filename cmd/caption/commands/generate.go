package commands

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/teranos/qntx-caption/ai/provider"
	"github.com/teranos/qntx-caption/am"
	"github.com/teranos/qntx-caption/caption"
	"github.com/teranos/qntx-caption/document"
	"github.com/teranos/qntx-caption/errors"
	"github.com/teranos/qntx-caption/field"
	"github.com/teranos/qntx-caption/logger"
	"github.com/teranos/qntx-caption/pointer"
)

// GenerateCmd captions one field of a document
var GenerateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate a caption for one field of a document",
	Long: `generate — Resolve the field's image and ask the caption provider for alt text.

The image pointer comes from --image, or field.image in the configuration.
Relative image pointers start from the field location (--at or
field.location). With --write the caption is stored at the field location.

Examples:
  caption generate --doc page.json --at /alt --image /hero
  caption generate --doc page.yaml --at /slides/0/caption --image 1/image --write
  caption generate --doc page.json --at /alt --provider openrouter`,
	RunE: runGenerate,
}

// fieldFlags are shared by generate and watch
type fieldFlags struct {
	doc      string
	at       string
	image    string
	provider string
	write    bool
}

func (f *fieldFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.doc, "doc", "", "Document file (.json, .yaml, .toml)")
	cmd.Flags().StringVar(&f.at, "at", "", "Absolute pointer of the caption field (default field.location)")
	cmd.Flags().StringVar(&f.image, "image", "", "Pointer to the image link, absolute or relative to --at (default field.image)")
	cmd.Flags().StringVar(&f.provider, "provider", "", "Caption provider: hub, local, openrouter, anthropic, auto (default provider.type)")
	cmd.Flags().BoolVarP(&f.write, "write", "w", false, "Store the caption in the document (keeps .back1-3)")
}

var generateFlags fieldFlags
var generateTimeout time.Duration

func init() {
	generateFlags.register(GenerateCmd)
	GenerateCmd.Flags().DurationVar(&generateTimeout, "timeout", 0, "Give up after this long (default: no limit beyond provider.timeout_seconds)")
}

// fieldSetup is everything a caption session for one field needs
type fieldSetup struct {
	cfg       *am.Config
	params    caption.Params
	location  string
	schema    field.Schema
	requester caption.Requester
	provider  provider.Provider
	log       *zap.SugaredLogger
}

func setupField(f fieldFlags, installation map[string]any) (*fieldSetup, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "configuration validation failed")
	}

	params := cfg.CaptionParams()
	// command-line flags are the installation layer and win over the config
	params.Installation = installation
	if f.image != "" {
		params.Installation["image"] = f.image
	}
	if params.ImagePointer() == "" {
		return nil, errors.WithHint(errors.New("no image pointer configured"),
			"pass --image or set field.image")
	}

	location := f.at
	if location == "" {
		location = cfg.Field.Location
	}
	if location != "" {
		p, err := pointer.Parse(location)
		if err != nil {
			return nil, errors.Wrap(err, "field location")
		}
		if p.Relative {
			return nil, errors.NewInvalidPointerError(location, "field location must be absolute")
		}
	}

	schema, err := cfg.FieldSchema()
	if err != nil {
		return nil, err
	}

	p := provider.Provider(cfg.GetProviderType())
	if f.provider != "" {
		if p, err = provider.ParseProvider(f.provider); err != nil {
			return nil, err
		}
	}
	log := logger.ComponentLogger("caption")
	requester, chosen, err := provider.NewRequester(cfg, p, logger.Logger)
	if err != nil {
		return nil, err
	}

	return &fieldSetup{
		cfg:       cfg,
		params:    params,
		location:  location,
		schema:    schema,
		requester: requester,
		provider:  chosen,
		log:       log,
	}, nil
}

// snapshot wraps doc with the field location, nil when none is known
func (fs *fieldSetup) snapshot(doc any) caption.Snapshot {
	snap := caption.Snapshot{Document: doc}
	if fs.location != "" {
		loc := fs.location
		snap.Location = &loc
	}
	return snap
}

// documentSink stores every text change at the field location of a
// document file
type documentSink struct {
	mu       sync.Mutex
	path     string
	location string
	doc      any
	// beforeWrite sees the encoded bytes first (watchers mark own writes)
	beforeWrite func([]byte)
}

func (d *documentSink) SetValue(ctx context.Context, text string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if textAt(d.doc, d.location) == text {
		return nil
	}
	if _, ok, _ := pointer.Evaluate(d.location, d.doc); !ok {
		parent, err := pointer.Parent(d.location)
		if err != nil {
			return err
		}
		if _, ok, _ := pointer.Evaluate(parent, d.doc); !ok {
			return errors.Newf("cannot store caption: %s does not exist", parent)
		}
	}

	doc, err := pointer.Set(d.doc, d.location, text)
	if err != nil {
		return err
	}
	format, err := document.FormatOf(d.path)
	if err != nil {
		return err
	}
	data, err := document.Encode(doc, format)
	if err != nil {
		return err
	}
	if d.beforeWrite != nil {
		d.beforeWrite(data)
	}
	if err := document.WriteFile(d.path, data); err != nil {
		return err
	}
	d.doc = doc
	return nil
}

// replace swaps in a document reloaded from disk
func (d *documentSink) replace(doc any) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.doc = doc
}

func runGenerate(cmd *cobra.Command, args []string) error {
	doc, err := requireDoc(generateFlags.doc)
	if err != nil {
		return err
	}
	fs, err := setupField(generateFlags, map[string]any{})
	if err != nil {
		return err
	}
	if generateFlags.write && fs.location == "" {
		return errors.WithHint(errors.New("--write needs the field location"), "pass --at or set field.location")
	}

	opts := caption.Options{
		Params:      fs.params,
		Requester:   fs.requester,
		InitialText: textAt(doc, fs.location),
		Logger:      fs.log,
	}
	if generateFlags.write {
		opts.Sink = &documentSink{path: generateFlags.doc, location: fs.location, doc: doc}
	}
	s := caption.New(opts)
	defer s.Close()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	if generateTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, generateTimeout)
		defer cancel()
	}

	if err := s.DocumentChanged(ctx, fs.snapshot(doc)); err != nil {
		return errors.Wrap(err, "image pointer")
	}
	target, ok := s.Target()
	if !ok {
		return errors.WithHint(errors.ErrNoImage,
			fmt.Sprintf("%s does not select an image link in %s", fs.params.ImagePointer(), generateFlags.doc))
	}

	spinner, _ := pterm.DefaultSpinner.Start(fmt.Sprintf("Captioning %s via %s...", target.URL, fs.provider))
	if err := s.StartCaption(); err != nil {
		spinner.Fail(err.Error())
		return err
	}

	done := make(chan struct{})
	go func() {
		s.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		s.Cancel()
		spinner.Fail("Timed out")
		return errors.Wrap(ctx.Err(), "caption request")
	}

	state := s.State()
	if state.Failure != nil {
		spinner.Fail(state.Failure.Message)
		return state.Failure.Err
	}
	spinner.Success("Caption generated")

	fmt.Fprintln(cmd.OutOrStdout(), state.Text)
	reportSchema(fs.schema, state.Text)
	if generateFlags.write {
		pterm.Success.Printf("Stored at %s in %s\n", fs.location, generateFlags.doc)
	}
	return nil
}

// reportSchema prints the length counter and any schema violations
func reportSchema(schema field.Schema, text string) {
	if counter := schema.Counter(text); counter != "" {
		pterm.Info.Printf("%s %s\n", schema.Label(), counter)
	}
	for _, v := range schema.Validate(text) {
		pterm.Warning.Printf("%s %s\n", schema.Label(), v.Message)
	}
}
