package cmd

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/NickB03/vana/internal/store"
)

func newIngestCmd() *cobra.Command {
	var entities bool

	cmd := &cobra.Command{
		Use:   "ingest <file>",
		Short: "Load documents or entities into the local stores",
		Long: `Ingest pre-chunked documents into the local vector store, or
entities into the graph store.

Documents are JSONL, one object per line:
  {"id": "doc-1", "title": "...", "body": "...", "url": "..."}

Entities are JSONL with --entities:
  {"name": "payments-service", "type": "service", "observations": ["..."]}

Use '-' to read from stdin.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIngest(cmd, args[0], entities)
		},
	}

	cmd.Flags().BoolVar(&entities, "entities", false, "Ingest graph entities instead of documents")

	return cmd
}

func runIngest(cmd *cobra.Command, path string, entities bool) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	var in io.Reader
	if path == "-" {
		in = cmd.InOrStdin()
	} else {
		f, err := os.Open(path)
		if err != nil {
			return fmt.Errorf("open input: %w", err)
		}
		defer f.Close()
		in = f
	}

	a, err := buildApp(cfg, slog.Default())
	if err != nil {
		return err
	}
	defer a.close()

	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	if entities {
		inputs, err := decodeEntities(in)
		if err != nil {
			return err
		}
		if err := a.store.IngestEntities(ctx, inputs); err != nil {
			return err
		}
		fmt.Fprintf(out, "ingested %d entities\n", len(inputs))
		return nil
	}

	docs, err := decodeDocuments(in)
	if err != nil {
		return err
	}
	if err := a.store.Ingest(ctx, docs); err != nil {
		return err
	}
	fmt.Fprintf(out, "ingested %d documents\n", len(docs))
	return nil
}

func decodeDocuments(r io.Reader) ([]store.Document, error) {
	var docs []store.Document
	line := 0

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line++
		raw := scanner.Bytes()
		if len(raw) == 0 {
			continue
		}
		var doc store.Document
		if err := json.Unmarshal(raw, &doc); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		if doc.ID == "" {
			return nil, fmt.Errorf("line %d: document has no id", line)
		}
		docs = append(docs, doc)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read input: %w", err)
	}
	if len(docs) == 0 {
		return nil, fmt.Errorf("no documents in input")
	}
	return docs, nil
}

func decodeEntities(r io.Reader) ([]store.EntityInput, error) {
	var inputs []store.EntityInput
	line := 0

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line++
		raw := scanner.Bytes()
		if len(raw) == 0 {
			continue
		}
		var in store.EntityInput
		if err := json.Unmarshal(raw, &in); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		if in.Name == "" {
			return nil, fmt.Errorf("line %d: entity has no name", line)
		}
		inputs = append(inputs, in)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read input: %w", err)
	}
	if len(inputs) == 0 {
		return nil, fmt.Errorf("no entities in input")
	}
	return inputs, nil
}
