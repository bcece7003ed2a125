package repository

import (
	"compress/gzip"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/olavph/builds/internal/command"
	"github.com/olavph/builds/logging"
)

func commitFile(t *testing.T, repo *git.Repository, dir string, name string, content string, message string) plumbing.Hash {
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0644))
	worktree, err := repo.Worktree()
	require.NoError(t, err)
	_, err = worktree.Add(name)
	require.NoError(t, err)
	signature := &object.Signature{
		Name:  "Tester",
		Email: "tester@example.com",
		When:  time.Now(),
	}
	hash, err := worktree.Commit(message, &git.CommitOptions{
		Author:    signature,
		Committer: signature,
	})
	require.NoError(t, err)
	return hash
}

// newUpstream creates a repository with two commits on master, a tag and a
// branch pointing at the first commit.
func newUpstream(t *testing.T) (string, *git.Repository, plumbing.Hash, plumbing.Hash) {
	dir := filepath.Join(t.TempDir(), "linux")
	repo, err := git.PlainInit(dir, false)
	require.NoError(t, err)
	first := commitFile(t, repo, dir, "README", "first", "first commit")
	require.NoError(t, repo.Storer.SetReference(
		plumbing.NewHashReference(plumbing.NewBranchReferenceName("stable"), first)))
	_, err = repo.CreateTag("v1.0", first, nil)
	require.NoError(t, err)
	second := commitFile(t, repo, dir, "README", "second", "second commit")
	return dir, repo, first, second
}

func TestGetClonesMissingRepository(t *testing.T) {
	logging.Initialize(false)
	defer logging.Release()

	upstreamDir, _, _, second := newUpstream(t)
	parentDir := t.TempDir()

	repo, err := Get(upstreamDir, parentDir, "", Options{})
	require.NoError(t, err)
	// the name is inferred from the URL path
	assert.Equal(t, "linux", repo.Name())
	assert.Equal(t, filepath.Join(parentDir, "linux"), repo.Path())

	head, err := repo.HeadCommit()
	require.NoError(t, err)
	assert.Equal(t, second.String(), head)
}

func TestGetOpensExistingRepository(t *testing.T) {
	logging.Initialize(false)
	defer logging.Release()

	upstreamDir, _, _, _ := newUpstream(t)
	parentDir := t.TempDir()

	_, err := Get(upstreamDir, parentDir, "sources", Options{})
	require.NoError(t, err)
	repo, err := Get(upstreamDir, parentDir, "sources", Options{})
	require.NoError(t, err)
	assert.Equal(t, "sources", repo.Name())
}

func TestGetUpdatesRemoteURL(t *testing.T) {
	logging.Initialize(false)
	defer logging.Release()

	upstreamDir, _, _, _ := newUpstream(t)
	otherUpstreamDir, _, _, _ := newUpstream(t)
	parentDir := t.TempDir()

	_, err := Get(upstreamDir, parentDir, "sources", Options{})
	require.NoError(t, err)
	repo, err := Get(otherUpstreamDir, parentDir, "sources", Options{})
	require.NoError(t, err)

	remote, err := repo.repo.Remote("origin")
	require.NoError(t, err)
	assert.Equal(t, []string{otherUpstreamDir}, remote.Config().URLs)
}

func TestGetRejectsInvalidRepository(t *testing.T) {
	logging.Initialize(false)
	defer logging.Release()

	parentDir := t.TempDir()
	brokenDir := filepath.Join(parentDir, "broken")
	require.NoError(t, os.MkdirAll(brokenDir, 0755))
	// a .git link file without the gitdir prefix cannot be opened
	require.NoError(t, os.WriteFile(filepath.Join(brokenDir, ".git"), []byte("garbage"), 0644))

	_, err := Get("https://example.com/broken.git", parentDir, "broken", Options{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidFormat))
}

func TestCheckout(t *testing.T) {
	logging.Initialize(false)
	defer logging.Release()

	upstreamDir, upstream, first, second := newUpstream(t)
	repo, err := Get(upstreamDir, t.TempDir(), "", Options{})
	require.NoError(t, err)

	data := []struct {
		name     string
		ref      string
		expected plumbing.Hash
	}{
		{name: "branch", ref: "stable", expected: first},
		{name: "tag", ref: "v1.0", expected: first},
		{name: "commit", ref: second.String(), expected: second},
		{name: "default branch", ref: "master", expected: second},
	}
	for _, tt := range data {
		t.Run(tt.name, func(t *testing.T) {
			require.NoError(t, repo.Checkout(tt.ref, nil))
			head, err := repo.HeadCommit()
			require.NoError(t, err)
			assert.Equal(t, tt.expected.String(), head)
		})
	}

	t.Run("fetches new upstream commits", func(t *testing.T) {
		third := commitFile(t, upstream, upstreamDir, "README", "third", "third commit")
		require.NoError(t, repo.Checkout("master", nil))
		head, err := repo.HeadCommit()
		require.NoError(t, err)
		assert.Equal(t, third.String(), head)
	})

	t.Run("unknown reference", func(t *testing.T) {
		err := repo.Checkout("no-such-ref", nil)
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrRefNotFound))
	})
}

func TestCommitAndPushHeadCommits(t *testing.T) {
	logging.Initialize(false)
	defer logging.Release()

	upstreamDir, _, _, _ := newUpstream(t)
	repo, err := Get(upstreamDir, t.TempDir(), "", Options{})
	require.NoError(t, err)
	require.NoError(t, repo.Checkout("master", nil))

	pushTargetDir := t.TempDir()
	_, err = git.PlainInit(pushTargetDir, true)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(
		filepath.Join(repo.Path(), "VERSION"), []byte("2.0-beta\n"), 0644))
	require.NoError(t, repo.CommitChanges(
		"Bump version", "Host OS Builder", "builder@example.com"))
	require.NoError(t, repo.PushHeadCommits(pushTargetDir, "master"))

	head, err := repo.HeadCommit()
	require.NoError(t, err)
	pushTarget, err := git.PlainOpen(pushTargetDir)
	require.NoError(t, err)
	pushedRef, err := pushTarget.Reference(plumbing.NewBranchReferenceName("master"), true)
	require.NoError(t, err)
	assert.Equal(t, head, pushedRef.Hash().String())

	pushedCommit, err := pushTarget.CommitObject(pushedRef.Hash())
	require.NoError(t, err)
	assert.Equal(t, "Bump version", pushedCommit.Message)
	assert.Equal(t, "Host OS Builder", pushedCommit.Author.Name)

	// pushing again with nothing new is not an error
	require.NoError(t, repo.PushHeadCommits(pushTargetDir, "master"))
}

// tarWritingRunner stands in for the git binary: an archive invocation
// creates the output file named by the -o argument.
type tarWritingRunner struct {
	t        *testing.T
	commands []command.Command
}

func (r *tarWritingRunner) Run(ctx context.Context, cmd command.Command) (string, error) {
	r.commands = append(r.commands, cmd)
	for index, arg := range cmd.Args {
		if arg == "-o" && index+1 < len(cmd.Args) {
			require.NoError(r.t, os.WriteFile(
				cmd.Args[index+1], []byte("tar contents"), 0644))
		}
	}
	return "", nil
}

func TestArchive(t *testing.T) {
	logging.Initialize(false)
	defer logging.Release()

	upstreamDir, _, _, _ := newUpstream(t)
	repo, err := Get(upstreamDir, t.TempDir(), "", Options{})
	require.NoError(t, err)

	buildDir := t.TempDir()
	runner := &tarWritingRunner{t: t}
	archivePath, err := repo.Archive(context.Background(), runner, "linux-4.18.0", buildDir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(buildDir, "linux-4.18.0.tar.gz"), archivePath)

	require.Len(t, runner.commands, 1)
	assert.Equal(t, "git", runner.commands[0].Name)
	assert.Contains(t, runner.commands[0].Args, "--prefix=linux-4.18.0/")
	assert.Equal(t, repo.Path(), runner.commands[0].Dir)

	// the uncompressed intermediate file is removed
	assert.NoFileExists(t, filepath.Join(buildDir, "linux-4.18.0.tar"))

	archiveFile, err := os.Open(archivePath)
	require.NoError(t, err)
	defer archiveFile.Close()
	reader, err := gzip.NewReader(archiveFile)
	require.NoError(t, err)
	content, err := io.ReadAll(reader)
	require.NoError(t, err)
	assert.Equal(t, "tar contents", string(content))
}
