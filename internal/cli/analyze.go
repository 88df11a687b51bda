package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/zombar/knowledgegraph/internal/export"
	"github.com/zombar/knowledgegraph/internal/extract"
	"github.com/zombar/knowledgegraph/internal/models"
	"github.com/zombar/knowledgegraph/internal/nlp"
	"github.com/zombar/knowledgegraph/internal/pipeline"
)

// analyzeCmd represents the analyze command
var analyzeCmd = &cobra.Command{
	Use:   "analyze <file>",
	Short: "Analyze a document and write its knowledge graph",
	Long: `Analyze runs the full extraction pipeline over one document (.pdf or
plain text) and writes four files to the output directory:

  entities.csv       canonical entities with type and mention count
  relationships.csv  subject-predicate-object triples
  graph.json         the entity graph in node-link form
  analysis.json      the complete analysis result

Pipeline knobs can also be set in the config file or KGCTL_* environment
variables; flags take priority.

Example:
  kgctl analyze paper.pdf
  kgctl analyze notes.txt --out ./graphs --top-n 40 --acronyms`,
	Args: cobra.ExactArgs(1),
	RunE: runAnalyze,
}

func init() {
	rootCmd.AddCommand(analyzeCmd)

	analyzeCmd.Flags().String("out", ".", "output directory")
	analyzeCmd.Flags().Duration("timeout", 5*time.Minute, "overall analysis timeout")
	analyzeCmd.Flags().Int("top-n", 25, "number of keywords to keep")
	analyzeCmd.Flags().Int("min-mentions", 2, "mentions needed for a node outside any relation")
	analyzeCmd.Flags().Bool("acronyms", false, "merge acronyms with their expansions")
	analyzeCmd.Flags().Bool("entity-keywords", false, "keep entity surface words in the keyword list")

	// Bind flags to viper so config file and env values feed the same keys
	_ = viper.BindPFlag("out", analyzeCmd.Flags().Lookup("out"))
	_ = viper.BindPFlag("timeout", analyzeCmd.Flags().Lookup("timeout"))
	_ = viper.BindPFlag("top_n", analyzeCmd.Flags().Lookup("top-n"))
	_ = viper.BindPFlag("min_mentions", analyzeCmd.Flags().Lookup("min-mentions"))
	_ = viper.BindPFlag("acronyms", analyzeCmd.Flags().Lookup("acronyms"))
	_ = viper.BindPFlag("entity_keywords", analyzeCmd.Flags().Lookup("entity-keywords"))
}

// analysisConfig builds the pipeline configuration from the resolved viper
// values (flags override env, env overrides config file, then defaults).
func analysisConfig() pipeline.Config {
	cfg := pipeline.DefaultConfig()
	cfg.Entities.AcronymMerge = viper.GetBool("acronyms")
	cfg.Keywords.TopN = viper.GetInt("top_n")
	cfg.Keywords.IncludeEntityTerms = viper.GetBool("entity_keywords")
	cfg.Graph.MinMentions = viper.GetInt("min_mentions")
	return cfg
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	path := args[0]
	outDir := viper.GetString("out")

	ctx, cancel := context.WithTimeout(context.Background(), viper.GetDuration("timeout"))
	defer cancel()

	if viper.GetBool("verbose") {
		fmt.Fprintf(os.Stderr, "Analyzing: %s\n", path)
	}

	text, err := extract.FromFile(path)
	if err != nil {
		return err
	}

	model := nlp.Default()
	p := pipeline.New(model, model, analysisConfig())

	result, err := p.Analyze(ctx, text)
	if err != nil {
		return fmt.Errorf("analysis failed: %w", err)
	}

	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return fmt.Errorf("creating output directory: %w", err)
	}

	if err := writeOutputs(outDir, result); err != nil {
		return err
	}

	fmt.Printf("Analyzed %s: %d entities, %d relations, %d keywords\n",
		filepath.Base(path), len(result.Entities), len(result.Triples), len(result.Keywords))
	fmt.Printf("Graph: %d nodes, %d edges (density %.3f)\n",
		result.Graph.NodeCount, result.Graph.EdgeCount, result.Graph.Density)
	if result.Partial {
		fmt.Fprintf(os.Stderr, "Warning: partial result, stages failed: %v\n", result.StageErrors)
	}
	fmt.Printf("Output written to %s\n", outDir)
	return nil
}

func writeOutputs(outDir string, result *models.AnalysisResult) error {
	write := func(name string, fn func(*os.File) error) error {
		f, err := os.Create(filepath.Join(outDir, name))
		if err != nil {
			return fmt.Errorf("creating %s: %w", name, err)
		}
		defer f.Close()
		if err := fn(f); err != nil {
			return fmt.Errorf("writing %s: %w", name, err)
		}
		return nil
	}

	if err := write("entities.csv", func(f *os.File) error {
		return export.EntitiesCSV(f, result.Entities)
	}); err != nil {
		return err
	}
	if err := write("relationships.csv", func(f *os.File) error {
		return export.RelationshipsCSV(f, result)
	}); err != nil {
		return err
	}
	if err := write("graph.json", func(f *os.File) error {
		return export.GraphJSON(f, result.Graph)
	}); err != nil {
		return err
	}
	return write("analysis.json", func(f *os.File) error {
		return export.ResultJSON(f, result)
	})
}
