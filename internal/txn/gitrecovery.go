package txn

import (
	"io"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/filemode"
	"github.com/go-git/go-git/v5/plumbing/object"

	"github.com/nefrols/nts-mcp-fs/internal/diffkit"
	"github.com/nefrols/nts-mcp-fs/internal/ntserr"
)

// GitSuggestion names a candidate path recovered from git history whose
// blob content matches a pre-image CRC that Smart Undo could not locate on
// the live working tree (spec §4.6 step 5, "GitSuggest hint").
type GitSuggestion struct {
	Path       string
	CommitHash string
}

// FindGitSuggestions opens the git repository at repoRoot (if any) and
// walks HEAD's tree looking for blobs whose CRC32C matches target,
// returning up to maxResults candidates. Returns an empty, non-error
// result when repoRoot is not a git working tree at all — GitSuggest is a
// best-effort hint, not a hard requirement.
func FindGitSuggestions(repoRoot string, target uint32, maxResults int) ([]GitSuggestion, error) {
	repo, err := git.PlainOpen(repoRoot)
	if err != nil {
		return nil, nil
	}
	head, err := repo.Head()
	if err != nil {
		return nil, nil
	}
	commit, err := repo.CommitObject(head.Hash())
	if err != nil {
		return nil, nil
	}
	tree, err := commit.Tree()
	if err != nil {
		return nil, nil
	}

	var matches []GitSuggestion
	walker := func(path string, entry *object.TreeEntry) error {
		if len(matches) >= maxResults {
			return nil
		}
		if entry.Mode != filemode.Dir {
			blob, err := repo.BlobObject(entry.Hash)
			if err != nil {
				return nil
			}
			reader, err := blob.Reader()
			if err != nil {
				return nil
			}
			defer reader.Close()
			content, err := io.ReadAll(reader)
			if err != nil {
				return nil
			}
			if diffkit.CRC32C(content) == target {
				matches = append(matches, GitSuggestion{Path: path, CommitHash: head.Hash().String()})
			}
		}
		return nil
	}

	if err := walkTree(tree, "", walker); err != nil {
		return nil, ntserr.Wrap(ntserr.KindInternal, err, "walking git tree for CRC recovery")
	}
	return matches, nil
}

// walkTree recursively visits every entry of tree, invoking fn with each
// entry's full repository-relative path. Mirrors the level-by-level
// subtree recursion used by the checkpoint tree-surgery code this system
// is descended from (read-only here: no new tree objects are built).
func walkTree(tree *object.Tree, prefix string, fn func(path string, entry *object.TreeEntry) error) error {
	for i := range tree.Entries {
		entry := &tree.Entries[i]
		fullPath := entry.Name
		if prefix != "" {
			fullPath = prefix + "/" + entry.Name
		}
		if entry.Mode != filemode.Dir {
			if err := fn(fullPath, entry); err != nil {
				return err
			}
			continue
		}
		subtree, err := tree.Tree(entry.Name)
		if err != nil {
			continue // not a tree we can descend into (submodule, symlink target, ...)
		}
		if err := walkTree(subtree, fullPath, fn); err != nil {
			return err
		}
	}
	return nil
}
