package pdf

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
	"time"
)

const extractTimeout = 30 * time.Second

var rePages = regexp.MustCompile(`(?m)^Pages:\s+(\d+)`)
var reNewlines = regexp.MustCompile(`\n{3,}`)

// pageCount reads the number of pages via pdfinfo.
func pageCount(ctx context.Context, path string) (int, error) {
	if _, err := exec.LookPath("pdfinfo"); err != nil {
		return 0, fmt.Errorf("pdfinfo not found in PATH: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, extractTimeout)
	defer cancel()

	out, err := exec.CommandContext(ctx, "pdfinfo", path).CombinedOutput()
	if err != nil {
		return 0, fmt.Errorf("pdfinfo failed: %w: %s", err, bytes.TrimSpace(out))
	}

	match := rePages.FindSubmatch(out)
	if match == nil {
		return 0, fmt.Errorf("pdfinfo output has no page count")
	}
	return strconv.Atoi(string(match[1]))
}

// extractPages runs pdftotext over one page range and normalizes the output.
func extractPages(ctx context.Context, path string, first, last int) (string, error) {
	if _, err := exec.LookPath("pdftotext"); err != nil {
		return "", fmt.Errorf("pdftotext not found in PATH: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, extractTimeout)
	defer cancel()

	cmd := exec.CommandContext(
		ctx,
		"pdftotext",
		"-f", strconv.Itoa(first),
		"-l", strconv.Itoa(last),
		"-enc", "UTF-8",
		"-eol", "unix",
		"-nopgbrk",
		"-q",
		path,
		"-",
	)
	cmd.Env = append(os.Environ(), "LANG=C.UTF-8", "LC_ALL=C.UTF-8")

	out, err := cmd.CombinedOutput()
	if ctx.Err() == context.DeadlineExceeded {
		return "", fmt.Errorf("pdftotext timed out")
	}
	if err != nil {
		return "", fmt.Errorf("pdftotext failed: %w: %s", err, bytes.TrimSpace(out))
	}

	text := strings.TrimSpace(string(out))
	text = reNewlines.ReplaceAllString(text, "\n\n")
	return text, nil
}
