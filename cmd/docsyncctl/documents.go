package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/rapidoc/docsync/internal/document"
	"github.com/spf13/cobra"
)

var (
	listQuery   string
	editContent string
	editFile    string
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List every document the user can see",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := connect(cmd.Context(), nil)
		if err != nil {
			return err
		}
		defer c.Close()
		if _, err := c.session.LoadAll(cmd.Context()); err != nil {
			return err
		}
		views, err := c.session.Search(cmd.Context(), listQuery)
		if err != nil {
			return err
		}
		return render(cmd.OutOrStdout(), outFormat, toRows(views))
	},
}

var createCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "Create an empty document owned by the user",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := connect(cmd.Context(), nil)
		if err != nil {
			return err
		}
		defer c.Close()
		d, err := c.session.CreateDocument(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		v, err := c.session.Get(cmd.Context(), d.ID)
		if err != nil {
			return err
		}
		return render(cmd.OutOrStdout(), outFormat, toRow(v))
	},
}

var editCmd = &cobra.Command{
	Use:   "edit <id>",
	Short: "Replace a document's content",
	Long:  "Replace a document's content with --content, or with the contents of --file (- reads stdin).",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		content, err := editInput(cmd)
		if err != nil {
			return err
		}
		c, err := connect(cmd.Context(), nil)
		if err != nil {
			return err
		}
		defer c.Close()
		if _, err := c.session.LoadAll(cmd.Context()); err != nil {
			return err
		}
		if err := c.session.ApplyLocalEdit(cmd.Context(), args[0], content); err != nil {
			if errors.Is(err, document.ErrReadOnly) {
				return fmt.Errorf("%s cannot edit %s: %w", userID, args[0], err)
			}
			return err
		}
		v, err := c.session.Get(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		return render(cmd.OutOrStdout(), outFormat, toRow(v))
	},
}

func editInput(cmd *cobra.Command) (string, error) {
	hasContent := cmd.Flags().Changed("content")
	if hasContent == (editFile != "") {
		return "", fmt.Errorf("specify exactly one of --content or --file")
	}
	if hasContent {
		return editContent, nil
	}
	var (
		b   []byte
		err error
	)
	if editFile == "-" {
		b, err = io.ReadAll(cmd.InOrStdin())
	} else {
		b, err = os.ReadFile(editFile)
	}
	if err != nil {
		return "", fmt.Errorf("read content: %w", err)
	}
	return string(b), nil
}

func init() {
	rootCmd.AddCommand(listCmd, createCmd, editCmd)
	listCmd.Flags().StringVarP(&listQuery, "query", "q", "", "only documents whose name or content contains this text")
	editCmd.Flags().StringVar(&editContent, "content", "", "new content")
	editCmd.Flags().StringVarP(&editFile, "file", "f", "", "read new content from a file, - for stdin")
}
