package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"text/tabwriter"
	"time"

	"github.com/MeKo-Tech/cue/internal/gallery"
	"github.com/MeKo-Tech/cue/internal/session"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var galleryCmd = &cobra.Command{
	Use:   "gallery",
	Short: "Browse generated images in the SQLite gallery",
}

var galleryListCmd = &cobra.Command{
	Use:   "list [session]",
	Short: "List gallery sessions, or the images of one session",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runGalleryList,
}

var galleryShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show one image's metadata and optionally export its PNG",
	Args:  cobra.ExactArgs(1),
	RunE:  runGalleryShow,
}

var sessionsCmd = &cobra.Command{
	Use:   "sessions [name]",
	Short: "List session directories, or the contents of one session",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runSessions,
}

func init() {
	rootCmd.AddCommand(galleryCmd)
	rootCmd.AddCommand(sessionsCmd)
	galleryCmd.AddCommand(galleryListCmd)
	galleryCmd.AddCommand(galleryShowCmd)

	galleryCmd.PersistentFlags().String("db", "gallery.db", "Gallery database path")
	galleryShowCmd.Flags().StringP("out", "o", "", "Write the PNG to this path")

	if err := viper.BindPFlag("gallery.path", galleryCmd.PersistentFlags().Lookup("db")); err != nil {
		panic(fmt.Sprintf("failed to bind flag: %v", err))
	}
}

func openGallery() (*gallery.Store, error) {
	path := viper.GetString("gallery.path")
	if path == "" {
		return nil, fmt.Errorf("no gallery configured (use --db or gallery.path)")
	}
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("gallery %s: %w", path, err)
	}
	return gallery.Open(path)
}

func runGalleryList(cmd *cobra.Command, args []string) error {
	store, err := openGallery()
	if err != nil {
		return err
	}
	defer store.Close()

	w := cmd.OutOrStdout()
	if len(args) == 0 {
		sessions, err := store.Sessions()
		if err != nil {
			return err
		}
		return printGallerySessions(w, sessions)
	}

	entries, err := store.List(args[0])
	if err != nil {
		return err
	}
	return printGalleryEntries(w, entries)
}

func printGallerySessions(w io.Writer, sessions []gallery.SessionSummary) error {
	if len(sessions) == 0 {
		fmt.Fprintln(w, "No sessions in gallery.")
		return nil
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SESSION\tIMAGES\tFIRST\tLAST")
	for _, s := range sessions {
		fmt.Fprintf(tw, "%s\t%d\t%s\t%s\n", s.Session, s.Count,
			s.First.Format(time.DateTime), s.Last.Format(time.DateTime))
	}
	return tw.Flush()
}

func printGalleryEntries(w io.Writer, entries []gallery.Entry) error {
	if len(entries) == 0 {
		fmt.Fprintln(w, "No images in session.")
		return nil
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tALGORITHM\tSEED\tSIZE\tDESCRIPTION")
	for _, e := range entries {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%dx%d\t%s\n", e.ID, e.Name, e.Algorithm, e.Seed,
			e.Width, e.Height, e.Description)
	}
	return tw.Flush()
}

func runGalleryShow(cmd *cobra.Command, args []string) error {
	store, err := openGallery()
	if err != nil {
		return err
	}
	defer store.Close()

	entry, err := store.Get(args[0])
	if err != nil {
		return err
	}

	out, _ := cmd.Flags().GetString("out")
	if out != "" {
		if err := os.MkdirAll(filepath.Dir(out), 0o755); err != nil {
			return fmt.Errorf("failed to create output dir: %w", err)
		}
		if err := os.WriteFile(out, entry.PNG, 0o644); err != nil {
			return fmt.Errorf("failed to write %s: %w", out, err)
		}
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	if err := enc.Encode(entry); err != nil {
		return err
	}
	if out != "" {
		fmt.Fprintf(cmd.OutOrStdout(), "Wrote %d bytes to %s\n", len(entry.PNG), out)
	}
	return nil
}

func runSessions(cmd *cobra.Command, args []string) error {
	base := viper.GetString("output-dir")
	w := cmd.OutOrStdout()

	if len(args) == 1 {
		sess, err := session.Open(base, args[0])
		if err != nil {
			return err
		}
		items, err := session.Contents(sess.Dir)
		if err != nil {
			return err
		}
		return printSessionContents(w, sess, items)
	}

	infos, err := session.List(base)
	if err != nil {
		return err
	}
	return printSessions(w, base, infos)
}

func printSessions(w io.Writer, base string, infos []session.Info) error {
	if len(infos) == 0 {
		fmt.Fprintf(w, "No sessions in %s.\n", base)
		return nil
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SESSION\tCREATED\tIMAGES\tLOGS\tSUBDIRS")
	for _, s := range infos {
		created := "-"
		if !s.Created.IsZero() {
			created = s.Created.Format(time.DateTime)
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%d\n", s.Name, created, s.Images, s.Logs, len(s.Subdirs))
	}
	return tw.Flush()
}

func printSessionContents(w io.Writer, sess *session.Session, items []session.Item) error {
	fmt.Fprintf(w, "%s\n", sess.Dir)
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for _, it := range items {
		switch it.Kind {
		case session.KindDir:
			fmt.Fprintf(tw, "  %s/\t%d files\n", it.Name, it.Count)
		default:
			fmt.Fprintf(tw, "  %s\t%s\t%d bytes\n", it.Name, it.Kind, it.Size)
		}
	}
	return tw.Flush()
}
