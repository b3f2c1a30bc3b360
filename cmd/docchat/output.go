package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"

	"gopkg.in/yaml.v3"

	"docchat/internal/docchat"
)

// Output formats accepted by -o.
const (
	formatTable = "table"
	formatJSON  = "json"
	formatYAML  = "yaml"
)

func checkFormat(format string) error {
	switch format {
	case formatTable, formatJSON, formatYAML:
		return nil
	default:
		return fmt.Errorf("unknown output format %q (want table, json or yaml)", format)
	}
}

// writeStructured encodes v as JSON or YAML.
func writeStructured(w io.Writer, format string, v any) error {
	switch format {
	case formatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case formatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	default:
		return fmt.Errorf("unknown output format %q", format)
	}
}

// printFiles lists the inventory. The selected file is marked with "*" in table output.
func printFiles(w io.Writer, format string, snap docchat.Snapshot) error {
	if format != formatTable {
		files := snap.Files
		if files == nil {
			files = []docchat.FileRecord{}
		}
		return writeStructured(w, format, files)
	}

	if len(snap.Files) == 0 {
		fmt.Fprintln(w, "No files uploaded.")
		return nil
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "#\t \tFILENAME\tTYPE\tSIZE\tUPLOADED\tSESSION")
	for i, f := range snap.Files {
		mark := " "
		if f.SessionID == snap.SelectedFileID {
			mark = "*"
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\t%s\n",
			i+1,
			mark,
			f.Filename,
			strings.ToUpper(f.FileType),
			formatSize(f.FileSize),
			f.CreatedAt.Local().Format("2006-01-02 15:04"),
			f.SessionID,
		)
	}
	return tw.Flush()
}

// formatSize renders a byte count the way file pickers do: 512 B, 1.5 KB, 10.0 MB.
func formatSize(n int64) string {
	const unit = 1024
	if n < unit {
		return strconv.FormatInt(n, 10) + " B"
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(n)/float64(div), "KMGTPE"[exp])
}

// statusLine describes what questions are currently answered from.
func statusLine(snap docchat.Snapshot) string {
	if f, ok := snap.SelectedFile(); ok {
		return "Chatting with: " + f.Filename
	}
	return "No file selected - AI will use general knowledge"
}

// printExchange shows an answer and the sources it was grounded on.
func printExchange(w io.Writer, ex *docchat.Exchange) {
	if ex.Answer == nil {
		fmt.Fprintln(w, "(answer discarded: the conversation was reset while waiting)")
		return
	}
	fmt.Fprintln(w, ex.Answer.Content)
	if len(ex.Sources) == 0 {
		return
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Sources:")
	for i, s := range ex.Sources {
		line := fmt.Sprintf("  [%d] %s", i+1, s.Source)
		if s.RelevanceScore > 0 {
			line += fmt.Sprintf(" (%.2f)", s.RelevanceScore)
		}
		fmt.Fprintln(w, line)
		if s.ContentPreview != "" {
			fmt.Fprintf(w, "      %s\n", s.ContentPreview)
		}
	}
}

// printUploadResults reports each file of a batch and returns the number of failures.
func printUploadResults(w io.Writer, results []docchat.UploadResult) int {
	failed := 0
	for _, r := range results {
		if r.Err != nil {
			failed++
			fmt.Fprintf(w, "Failed   %s: %v\n", r.File.Name, r.Err)
			continue
		}
		fmt.Fprintf(w, "Uploaded %s (%s, session %s)\n", r.Record.Filename, formatSize(r.Record.FileSize), r.Record.SessionID)
	}
	return failed
}

// errNoFileMatch is wrapped by lookups that matched nothing, as opposed to ambiguous ones.
var errNoFileMatch = errors.New("no file matches")

// resolveFileRef finds a file by 1-based list position, session id, unique session id
// prefix, or unique filename.
func resolveFileRef(files []docchat.FileRecord, ref string) (docchat.FileRecord, error) {
	return matchFileRef(files, ref, true)
}

// matchFileRef is resolveFileRef with list positions optional. Positions only make
// sense against the list the user was shown.
func matchFileRef(files []docchat.FileRecord, ref string, byPosition bool) (docchat.FileRecord, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return docchat.FileRecord{}, fmt.Errorf("no file given")
	}
	if byPosition {
		if n, err := strconv.Atoi(ref); err == nil && n >= 1 && n <= len(files) {
			return files[n-1], nil
		}
	}
	for _, f := range files {
		if f.SessionID == ref {
			return f, nil
		}
	}

	var matches []docchat.FileRecord
	for _, f := range files {
		if strings.HasPrefix(f.SessionID, ref) || f.Filename == ref {
			matches = append(matches, f)
		}
	}
	switch len(matches) {
	case 1:
		return matches[0], nil
	case 0:
		return docchat.FileRecord{}, fmt.Errorf("%w %q", errNoFileMatch, ref)
	default:
		return docchat.FileRecord{}, fmt.Errorf("%q matches %d files, use the session id", ref, len(matches))
	}
}
