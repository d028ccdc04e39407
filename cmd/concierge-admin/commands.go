package main

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/healo-ai/concierge/pkg/audit"
	"github.com/healo-ai/concierge/pkg/common/database"
	"github.com/healo-ai/concierge/pkg/funnel"
	"github.com/healo-ai/concierge/pkg/inquiry"
	"github.com/healo-ai/concierge/pkg/notifications"
	"github.com/healo-ai/concierge/pkg/rag"
	"github.com/healo-ai/concierge/pkg/security"
	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update tables",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		_, db, err := openDB()
		if err != nil {
			return err
		}
		defer database.ClosePostgres(db)

		steps := []struct {
			name string
			run  func() error
		}{
			{"inquiries", inquiry.NewRepository(db).AutoMigrate},
			{"admin_audit_logs", audit.NewRepository(db).AutoMigrate},
			{"inquiry_events", funnel.NewRepository(db).AutoMigrate},
			{"notification_recipients", notifications.NewRepository(db).AutoMigrate},
			{"rag", rag.NewRepository(db).AutoMigrate},
		}
		for _, step := range steps {
			if err := step.run(); err != nil {
				return fmt.Errorf("migrate %s: %w", step.name, err)
			}
			fmt.Printf("%s %s\n", okText("migrated"), step.name)
		}
		return nil
	},
}

var (
	ingestSources  []string
	ingestSourceID string
)

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Rebuild RAG documents from the source tables",
	Long: `Builds one document per source row and re-chunks it when its content
changed. Unchanged documents are left alone, so the command is safe to re-run.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, db, err := openDB()
		if err != nil {
			return err
		}
		defer database.ClosePostgres(db)

		repo := rag.NewRepository(db)
		types := make([]rag.SourceType, 0, len(ingestSources))
		for _, s := range ingestSources {
			types = append(types, rag.SourceType(s))
		}

		results, err := rag.NewIngestor(repo, repo, cfg.RAGChunkMaxLength).Ingest(cmd.Context(), types, ingestSourceID)
		if err != nil {
			return err
		}
		keys := make([]string, 0, len(results))
		for k := range results {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Printf("%-20s %d updated\n", keyText(k), results[k])
		}
		return nil
	},
}

var (
	fileSourceType string
	fileSourceID   string
	fileLang       string
	fileTitle      string
)

var ingestFileCmd = &cobra.Command{
	Use:   "ingest-file <path>",
	Short: "Load a policy or FAQ text file as a RAG document",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		st := rag.SourceType(fileSourceType)
		if st != rag.SourcePolicy && st != rag.SourceFAQ {
			return fmt.Errorf("--type must be %q or %q", rag.SourcePolicy, rag.SourceFAQ)
		}
		content, err := os.ReadFile(filepath.Clean(args[0]))
		if err != nil {
			return err
		}
		if strings.TrimSpace(string(content)) == "" {
			return fmt.Errorf("%s is empty", args[0])
		}

		cfg, db, err := openDB()
		if err != nil {
			return err
		}
		defer database.ClosePostgres(db)

		base := strings.TrimSuffix(filepath.Base(args[0]), filepath.Ext(args[0]))
		doc := rag.Document{
			SourceType: st,
			SourceID:   fileSourceID,
			Lang:       fileLang,
			Content:    strings.TrimSpace(string(content)),
		}
		if doc.SourceID == "" {
			doc.SourceID = base
		}
		title := fileTitle
		if title == "" {
			title = base
		}
		doc.Title = &title

		repo := rag.NewRepository(db)
		changed, err := rag.NewIngestor(repo, repo, cfg.RAGChunkMaxLength).UpsertDocument(cmd.Context(), doc)
		if err != nil {
			return err
		}
		if changed {
			fmt.Printf("%s %s/%s (%s)\n", okText("updated"), st, doc.SourceID, doc.Lang)
		} else {
			fmt.Printf("%s %s/%s unchanged\n", warnText("skipped"), st, doc.SourceID)
		}
		return nil
	},
}

var (
	searchLang  string
	searchLimit int
)

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Run a lexical RAG search",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		_, db, err := openDB()
		if err != nil {
			return err
		}
		defer database.ClosePostgres(db)

		hits, err := rag.NewSearcher(rag.NewRepository(db)).Search(cmd.Context(), rag.Query{
			Query: strings.Join(args, " "),
			Lang:  searchLang,
			Limit: searchLimit,
		})
		if err != nil {
			return err
		}
		if len(hits) == 0 {
			fmt.Println(warnText("no results"))
			return nil
		}
		for _, h := range hits {
			title := ""
			if h.Document.Title != nil {
				title = " | " + *h.Document.Title
			}
			fmt.Printf("%s [%s%s] score=%d\n  %s\n", keyText(fmt.Sprintf("#%d", h.ID)), h.Document.SourceType, title, h.Score, preview(h.Content, 160))
		}
		return nil
	},
}

var rotateTokenCmd = &cobra.Command{
	Use:   "rotate-token <inquiry-id>",
	Short: "Issue a new public token for an inquiry",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, db, err := openDB()
		if err != nil {
			return err
		}
		defer database.ClosePostgres(db)

		cipher, err := security.NewCipher(cfg.EncryptionKey)
		if err != nil {
			return err
		}
		token, err := inquiry.NewService(inquiry.NewRepository(db), cipher).RotateToken(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		fmt.Printf("%s inquiry %s public token %s\n", okText("rotated"), args[0], token)
		return nil
	},
}

var (
	backfillExecute   bool
	backfillBatchSize int
	backfillStartID   int64
)

var backfillCmd = &cobra.Command{
	Use:   "backfill-encryption",
	Short: "Encrypt plaintext PII left on older inquiries",
	Long: `Walks inquiries in id order and encrypts name, email, contact id, message
and intake PII keys that are still plaintext. Values that are already
encrypted are left alone. Runs as a dry run unless --execute is given.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, db, err := openDB()
		if err != nil {
			return err
		}
		defer database.ClosePostgres(db)

		cipher, err := security.NewCipher(cfg.EncryptionKey)
		if err != nil {
			return err
		}

		label := okText("encrypted")
		if !backfillExecute {
			label = warnText("[dry-run]")
		}
		res, err := inquiry.Backfill(cmd.Context(), inquiry.NewRepository(db), cipher, inquiry.BackfillOptions{
			DryRun:    !backfillExecute,
			BatchSize: backfillBatchSize,
			StartID:   backfillStartID,
			OnRow: func(id int64, columns []string, err error) {
				if err != nil {
					fmt.Printf("%s inquiry %d\n", errText("failed"), id)
					return
				}
				fmt.Printf("%s inquiry %d: %s\n", label, id, strings.Join(columns, ", "))
			},
		})
		fmt.Printf("%s scanned=%d encrypted=%d skipped=%d failed=%d\n",
			keyText("backfill"), res.Scanned, res.Encrypted, res.Skipped, res.Failed)
		if err != nil {
			return err
		}
		if res.Failed > 0 {
			return fmt.Errorf("%d inquiries could not be encrypted", res.Failed)
		}
		return nil
	},
}

func init() {
	backfillCmd.Flags().BoolVar(&backfillExecute, "execute", false, "write changes (default is a dry run)")
	backfillCmd.Flags().IntVar(&backfillBatchSize, "batch-size", inquiry.DefaultBackfillBatch, "rows read per batch")
	backfillCmd.Flags().Int64Var(&backfillStartID, "start-id", 0, "first inquiry id to scan")

	ingestCmd.Flags().StringSliceVar(&ingestSources, "sources", nil, "source types to ingest (default: treatment,hospital,review,normalized_inquiry)")
	ingestCmd.Flags().StringVar(&ingestSourceID, "source-id", "", "only ingest this source row id")

	ingestFileCmd.Flags().StringVar(&fileSourceType, "type", string(rag.SourcePolicy), "document type: policy or faq")
	ingestFileCmd.Flags().StringVar(&fileSourceID, "source-id", "", "document id (default: file name)")
	ingestFileCmd.Flags().StringVar(&fileLang, "lang", "en", "document language")
	ingestFileCmd.Flags().StringVar(&fileTitle, "title", "", "document title (default: file name)")

	searchCmd.Flags().StringVar(&searchLang, "lang", "", "restrict to one language")
	searchCmd.Flags().IntVar(&searchLimit, "limit", rag.DefaultSearchLimit, "maximum results")
}

func preview(s string, n int) string {
	r := []rune(strings.TrimSpace(s))
	if len(r) <= n {
		return string(r)
	}
	return string(r[:n]) + "…"
}
