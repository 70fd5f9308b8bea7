package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/privylens/privylens/internal/scrub"
	"github.com/privylens/privylens/internal/vision"
)

var (
	redactPolicy     string
	redactMaskedOnly bool
	redactIn         string
	redactOut        string
	redactBoxes      []string
)

var redactCmd = &cobra.Command{
	Use:   "redact",
	Short: "Redact text or images locally",
}

var redactTextCmd = &cobra.Command{
	Use:   "text [text|-]",
	Short: "Mask personal data in text and print {masked, spans}",
	RunE:  runRedactText,
}

var redactImageCmd = &cobra.Command{
	Use:   "image --in <file> --out <file.png>",
	Short: "Pixelate faces and the given boxes in an image",
	Args:  cobra.NoArgs,
	RunE:  runRedactImage,
}

func init() {
	redactCmd.PersistentFlags().StringVar(&redactPolicy, "policy", "", "category toggles, e.g. emails=false,faces=true")
	redactTextCmd.Flags().BoolVar(&redactMaskedOnly, "masked", false, "print only the masked text")
	redactImageCmd.Flags().StringVar(&redactIn, "in", "", "input image (PNG, JPEG or GIF)")
	redactImageCmd.Flags().StringVar(&redactOut, "out", "", "output PNG path")
	redactImageCmd.Flags().StringArrayVar(&redactBoxes, "box", nil, "normalized region x,y,w,h to pixelate (repeatable)")
	_ = redactImageCmd.MarkFlagRequired("in")
	_ = redactImageCmd.MarkFlagRequired("out")

	redactCmd.AddCommand(redactTextCmd, redactImageCmd)
	rootCmd.AddCommand(redactCmd)
}

func runRedactText(cmd *cobra.Command, args []string) error {
	ctx, span := tracer.Start(cmd.Context(), "redact.text")
	defer span.End()

	policy, err := parsePolicy(redactPolicy)
	if err != nil {
		return err
	}
	text, err := readInput(cmd, args)
	if err != nil {
		return err
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	var res closers
	defer func() { _ = res.Close() }()
	rec, err := buildRecognizer(cfg.NER)
	if err != nil {
		return err
	}
	res.add(rec)

	result, out := buildEngine(cfg.NER, rec).RedactText(ctx, text, policy)
	if out.NERDegraded {
		log.Warn().Str("error", scrub.Err(out.NERError)).Msg("entity recognition skipped")
	}
	if redactMaskedOnly {
		_, err = fmt.Fprintln(cmd.OutOrStdout(), result.Masked)
		return err
	}
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(result.UTF16(text))
}

func runRedactImage(cmd *cobra.Command, _ []string) error {
	ctx, span := tracer.Start(cmd.Context(), "redact.image")
	defer span.End()

	policy, err := parsePolicy(redactPolicy)
	if err != nil {
		return err
	}
	boxes := make([]vision.BoundingBox, 0, len(redactBoxes))
	for _, s := range redactBoxes {
		b, err := parseBox(s)
		if err != nil {
			return err
		}
		boxes = append(boxes, b)
	}
	data, err := os.ReadFile(redactIn)
	if err != nil {
		return fmt.Errorf("reading image: %w", err)
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	var res closers
	defer func() { _ = res.Close() }()
	images, err := buildImageRedactor(cfg.Vision, &res)
	if err != nil {
		return err
	}

	out, rep, err := images.Redact(ctx, vision.Request{Data: data, Policy: policy, Boxes: boxes})
	if err != nil {
		return fmt.Errorf("redacting %s: %w", redactIn, err)
	}
	if err := os.WriteFile(redactOut, out, 0o600); err != nil {
		return fmt.Errorf("writing image: %w", err)
	}
	return json.NewEncoder(cmd.OutOrStdout()).Encode(rep)
}
