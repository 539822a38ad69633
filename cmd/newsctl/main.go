// Copyright (c) 2024, 0x0BSoD. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/0x0BSoD/cryptonews/internal/answer"
	"github.com/0x0BSoD/cryptonews/internal/client"
)

const defaultBaseURL = "http://localhost:8080"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := newRootCmd(os.Stdout).ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newRootCmd(out io.Writer) *cobra.Command {
	var (
		baseURL string
		timeout time.Duration
	)

	root := &cobra.Command{
		Use:           "newsctl",
		Short:         "Query a cryptonews API server",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.SetOut(out)
	root.PersistentFlags().StringVar(&baseURL, "base-url", envOr("NEWSCTL_BASE_URL", defaultBaseURL), "API server address")
	root.PersistentFlags().DurationVar(&timeout, "timeout", 2*time.Minute, "request timeout")

	api := func() *client.Client { return client.New(baseURL, timeout) }

	root.AddCommand(
		countCmd(api),
		articlesCmd(api),
		latestCmd(api),
		tablesCmd(api),
		sqlCmd(api),
		searchCmd(api),
	)

	return root
}

type clientFunc func() *client.Client

func countCmd(api clientFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "count",
		Short: "Print the number of stored articles",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			n, err := api().Count(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), map[string]int64{"total_articles": n})
		},
	}
}

func articlesCmd(api clientFunc) *cobra.Command {
	var q client.ArticlesQuery

	cmd := &cobra.Command{
		Use:   "articles",
		Short: "List a page of articles, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			page, err := api().Articles(cmd.Context(), q)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), page)
		},
	}
	cmd.Flags().IntVar(&q.Page, "page", 1, "page number")
	cmd.Flags().IntVar(&q.PageSize, "page-size", 10, "articles per page (max 100)")
	cmd.Flags().StringSliceVar(&q.SourceNames, "source", nil, "filter by source name (repeatable)")
	cmd.Flags().StringVar(&q.Query, "q", "", "case-insensitive title search")

	return cmd
}

func latestCmd(api clientFunc) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "latest",
		Short: "List the most recently published articles",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			articles, err := api().Latest(cmd.Context(), limit)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), articles)
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 10, "number of articles")

	return cmd
}

func tablesCmd(api clientFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "tables",
		Short: "List the tables of the public schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			tables, err := api().Tables(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), tables)
		},
	}
}

func sqlCmd(api clientFunc) *cobra.Command {
	var req answer.ExecuteRequest

	cmd := &cobra.Command{
		Use:   "sql [prompt]",
		Short: "Answer a question from the rows of a SQL query",
		Long: "Runs --query (or a query generated from the prompt when --query is empty)\n" +
			"against the articles table and answers the prompt from the result.",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				req.Prompt = args[0]
			}
			if strings.TrimSpace(req.Prompt) == "" {
				return fmt.Errorf("a prompt is required")
			}

			res, err := api().ExecuteSQL(cmd.Context(), req)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), res)
		},
	}
	cmd.Flags().StringVar(&req.Prompt, "prompt", "", "question to answer")
	cmd.Flags().StringVar(&req.SystemPrompt, "system-prompt", "", "system prompt override")
	cmd.Flags().StringVar(&req.Model, "model", "", "model override")
	cmd.Flags().StringVar(&req.SQLQuery, "query", "", "SELECT statement to run")

	return cmd
}

func searchCmd(api clientFunc) *cobra.Command {
	var req answer.SearchRequest

	cmd := &cobra.Command{
		Use:   "search <prompt>",
		Short: "Answer a question from the most similar articles",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req.Prompt = args[0]

			res, err := api().Search(cmd.Context(), req)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), res)
		},
	}
	cmd.Flags().StringVar(&req.SystemPrompt, "system-prompt", "", "system prompt override")
	cmd.Flags().StringVar(&req.Model, "model", "", "model override")
	cmd.Flags().IntVar(&req.Limit, "limit", 5, "number of articles to use (max 20)")

	return cmd
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
