// Package candidate ranks and deduplicates the PDF variants attached to one
// catalog item, picking which file(s) to fetch.
package candidate

import (
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/scanforge/scanforge/internal/catalog"
	"github.com/scanforge/scanforge/internal/checksum"
)

// dedupThresholdPercent is the near-duplicate size heuristic: a candidate
// within this percentage of the best file's size is dropped in all-variants
// mode. Known to over- and under-merge; kept for compatibility.
const dedupThresholdPercent = 10.0

// Selector chooses which PDF variants to download for an item.
type Selector struct {
	downloadDir string
	logger      *zap.Logger
}

// New creates a Selector. downloadDir enables the exact-size hash check
// against files already on disk; it may be empty.
func New(downloadDir string, logger *zap.Logger) *Selector {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Selector{downloadDir: downloadDir, logger: logger}
}

// Select filters the item's files down to PDF candidates, ranks them, and
// returns the ordered list to fetch: the single best candidate by default,
// or a deduplicated set when allVariants is set.
func (s *Selector) Select(files []catalog.FileInfo, allVariants bool) []catalog.FileInfo {
	candidates := filterPDFs(files)
	if len(candidates) == 0 {
		return nil
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return rank(candidates[i]).less(rank(candidates[j]))
	})

	if !allVariants {
		return candidates[:1]
	}
	if len(candidates) == 1 {
		return candidates
	}
	return s.dedup(candidates)
}

func filterPDFs(files []catalog.FileInfo) []catalog.FileInfo {
	var out []catalog.FileInfo
	for _, f := range files {
		if f.Name == "" {
			continue
		}
		name := strings.ToLower(f.Name)
		format := strings.ToLower(f.Format)
		if strings.HasSuffix(name, ".pdf") || strings.Contains(format, "pdf") {
			out = append(out, f)
		}
	}
	return out
}

// score orders candidates: color beats black-and-white, a plain scan beats
// a _text derivative, then larger size wins.
type score struct {
	color int
	plain int
	size  int64
}

// less reports whether s sorts before o, i.e. s is the better file.
func (s score) less(o score) bool {
	if s.color != o.color {
		return s.color > o.color
	}
	if s.plain != o.plain {
		return s.plain > o.plain
	}
	return s.size > o.size
}

func rank(f catalog.FileInfo) score {
	name := strings.ToLower(f.Name)
	format := strings.ToLower(f.Format)

	sc := score{color: 1, plain: 1, size: Size(f)}
	if strings.Contains(name, "_bw") || strings.Contains(format, "bw") {
		sc.color = 0
	}
	if strings.Contains(name, "_text") {
		sc.plain = 0
	}
	return sc
}

// Size parses the declared size, treating missing or non-numeric values as
// zero. The field is untrusted input.
func Size(f catalog.FileInfo) int64 {
	n, err := strconv.ParseInt(strings.TrimSpace(f.Size.String()), 10, 64)
	if err != nil || n < 0 {
		return 0
	}
	return n
}

// dedup always keeps the top-ranked candidate, then drops any follower whose
// size is within the threshold of the best file's size. When sizes match
// exactly and both files are already on disk, a hash comparison settles it.
func (s *Selector) dedup(candidates []catalog.FileInfo) []catalog.FileInfo {
	best := candidates[0]
	bestSize := Size(best)
	kept := []catalog.FileInfo{best}

	for _, c := range candidates[1:] {
		cSize := Size(c)
		if bestSize > 0 {
			diffPercent := float64(abs64(cSize-bestSize)) / float64(bestSize) * 100
			if diffPercent < dedupThresholdPercent {
				s.logger.Debug("dropping near-duplicate variant",
					zap.String("name", c.Name),
					zap.Float64("size_diff_percent", diffPercent),
				)
				continue
			}
		}
		if cSize == bestSize && s.sameLocalHash(best.Name, c.Name) {
			s.logger.Debug("dropping hash-identical variant", zap.String("name", c.Name))
			continue
		}
		kept = append(kept, c)
	}
	return kept
}

func (s *Selector) sameLocalHash(bestName, candName string) bool {
	if s.downloadDir == "" {
		return false
	}
	bestPath := filepath.Join(s.downloadDir, bestName)
	candPath := filepath.Join(s.downloadDir, candName)
	if !fileExists(bestPath) || !fileExists(candPath) {
		return false
	}
	bestSum, err := checksum.SumFile(bestPath)
	if err != nil {
		return false
	}
	candSum, err := checksum.SumFile(candPath)
	if err != nil {
		return false
	}
	return bestSum != "" && bestSum == candSum
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

func abs64(n int64) int64 {
	if n < 0 {
		return -n
	}
	return n
}
