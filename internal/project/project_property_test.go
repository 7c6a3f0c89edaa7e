package project

import (
	"strings"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// TestEditCodePreservesLinesOutsideRange verifies that edit_code never
// touches a line outside [find_start_line, find_end_line], and that the
// file's total line count changes by exactly the delta between the
// replacement's and the found text's line counts.
func TestEditCodePreservesLinesOutsideRange(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("lines outside the edited range are byte-identical", prop.ForAll(
		func(before, target, after, find, replace string) bool {
			if find == "" || strings.Contains(find, "\n") {
				return true
			}
			content := before + "\n" + target + find + "\n" + after
			lines := splitLines(content)
			total := len(lines)
			targetLine := 2
			if targetLine > total {
				return true
			}

			p := New(map[string]string{"f.txt": content})
			result, err := p.EditCode("f.txt", targetLine, targetLine, find, replace)
			if err != nil {
				return true
			}

			newLines := splitLines(result.FullContent)
			if len(newLines) != total-1+len(splitLines(replace)) {
				return false
			}
			for i, l := range lines {
				if i == targetLine-1 {
					continue
				}
				idx := i
				if i > targetLine-1 {
					idx = i - 1 + len(splitLines(replace))
				}
				if idx >= len(newLines) || newLines[idx] != l {
					return false
				}
			}
			return true
		},
		gen.AlphaString(),
		gen.AlphaString(),
		gen.AlphaString(),
		gen.AlphaString().SuchThat(func(s string) bool { return len(s) > 0 }),
		gen.AlphaString(),
	))

	properties.TestingRun(t)
}

// TestRenameFolderRewritesEveryMatchingPrefix verifies that after
// rename_folder(old, new), no path starts with old+"/", every path that did
// gets its prefix replaced, and file content is preserved.
func TestRenameFolderRewritesEveryMatchingPrefix(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("no path retains the old prefix and content survives", prop.ForAll(
		func(oldName, newName string, suffixes []string) bool {
			if oldName == "" || newName == "" || oldName == newName {
				return true
			}
			files := map[string]string{}
			for i, suffix := range suffixes {
				if suffix == "" {
					continue
				}
				files[oldName+"/"+suffix] = "content-" + string(rune('a'+i%26))
			}
			if len(files) == 0 {
				return true
			}

			p := New(files)
			before := map[string]string{}
			for k, v := range p.Files() {
				before[k] = v
			}

			p.RenameFolder(oldName, newName)

			oldPrefix := oldName + "/"
			for path := range p.Files() {
				if strings.HasPrefix(path, oldPrefix) {
					return false
				}
			}
			for path, content := range before {
				suffix := strings.TrimPrefix(path, oldPrefix)
				got, ok := p.Get(newName + "/" + suffix)
				if !ok || got != content {
					return false
				}
			}
			return true
		},
		gen.AlphaString().SuchThat(func(s string) bool { return len(s) > 0 }),
		gen.AlphaString().SuchThat(func(s string) bool { return len(s) > 0 }),
		gen.SliceOfN(5, gen.AlphaString()),
	))

	properties.TestingRun(t)
}
