package repository

import (
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-git/go-git/v5"
	gitconfig "github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/plumbing/transport"

	"github.com/olavph/builds/internal/command"
	"github.com/olavph/builds/internal/utils"
	"github.com/olavph/builds/logging"
)

const (
	mainRemoteName = "origin"
	pushRemoteName = "push-remote"

	ErrRefNotFound   = utils.ConstError("reference not found in repository")
	ErrPushRejected  = utils.ConstError("push to remote reference rejected")
	ErrInvalidFormat = utils.ConstError("repository has an invalid format")
)

// GitRepository wraps a local clone of a remote git repository.
type GitRepository struct {
	repo      *git.Repository
	path      string
	httpProxy string
}

// Options tune how repositories are cloned and fetched.
type Options struct {
	HTTPProxy string
}

// Get returns the local git repository located in a subdirectory of the
// parent directory, named after the file name of the URL path unless a name
// is given, updating the main remote URL if needed. If the local repository
// does not exist it is cloned from the remote URL.
func Get(remoteRepoURL string, parentDirPath string, name string, opts Options) (*GitRepository, error) {
	if name == "" {
		urlParts, err := url.Parse(remoteRepoURL)
		if err != nil {
			return nil, fmt.Errorf("invalid repository URL %q: %w", remoteRepoURL, err)
		}
		name = strings.TrimSuffix(filepath.Base(urlParts.Path), filepath.Ext(urlParts.Path))
	}
	repoPath := filepath.Join(parentDirPath, name)

	repo, err := Open(repoPath, opts)
	if errors.Is(err, git.ErrRepositoryNotExists) {
		logging.Logger.Debugw("repository path does not exist", "path", repoPath)
		return Clone(remoteRepoURL, repoPath, opts)
	}
	if err != nil {
		// A repository that cannot be opened may have changed storage
		// format; the operator has to remove it before retrying.
		logging.Logger.Errorw("repository has an invalid format, remove it and try again",
			"path", repoPath, "err", err)
		return nil, fmt.Errorf("%w: %s", ErrInvalidFormat, repoPath)
	}
	if err := repo.ForceCreateRemote(mainRemoteName, remoteRepoURL); err != nil {
		return nil, err
	}
	return repo, nil
}

func Open(repoPath string, opts Options) (*GitRepository, error) {
	repo, err := git.PlainOpen(repoPath)
	if err != nil {
		return nil, err
	}
	logging.Logger.Infow("found existent repository at destination path", "path", repoPath)
	return &GitRepository{repo: repo, path: repoPath, httpProxy: opts.HTTPProxy}, nil
}

func Clone(remoteRepoURL string, repoPath string, opts Options) (*GitRepository, error) {
	logging.Logger.Infow("cloning repository", "url", remoteRepoURL, "path", repoPath)
	cloneOptions := &git.CloneOptions{
		URL:        remoteRepoURL,
		RemoteName: mainRemoteName,
		Tags:       git.AllTags,
	}
	if opts.HTTPProxy != "" {
		cloneOptions.ProxyOptions = transport.ProxyOptions{URL: opts.HTTPProxy}
	}
	repo, err := git.PlainClone(repoPath, false, cloneOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to clone repository from %s: %w", remoteRepoURL, err)
	}
	return &GitRepository{repo: repo, path: repoPath, httpProxy: opts.HTTPProxy}, nil
}

func (r *GitRepository) Name() string {
	return filepath.Base(r.path)
}

func (r *GitRepository) Path() string {
	return r.path
}

// HeadCommit returns the commit hash the repository head points at.
func (r *GitRepository) HeadCommit() (string, error) {
	head, err := r.repo.Head()
	if err != nil {
		return "", err
	}
	return head.Hash().String(), nil
}

// Checkout fetches the main remote and checks out the reference name,
// resetting the worktree state. The reference may be a branch, tag or commit.
// Optional refspecs override the patterns fetched from the remote.
func (r *GitRepository) Checkout(refName string, refspecs []string) error {
	logging.Logger.Infow("fetching repository remote",
		"name", r.Name(), "remote", mainRemoteName)
	if err := r.fetch(refspecs); err != nil {
		return err
	}

	hash, err := r.resolveReference(refName)
	if err != nil {
		return err
	}
	logging.Logger.Infow("checking out reference",
		"name", r.Name(), "ref", refName, "commit", hash.String())

	worktree, err := r.repo.Worktree()
	if err != nil {
		return err
	}
	if err := worktree.Checkout(&git.CheckoutOptions{Hash: hash, Force: true}); err != nil {
		return fmt.Errorf("could not check out reference %s at %s repository: %w",
			refName, r.Name(), err)
	}
	return r.updateSubmodules(worktree)
}

func (r *GitRepository) fetch(refspecs []string) error {
	fetchOptions := &git.FetchOptions{
		RemoteName: mainRemoteName,
		Tags:       git.AllTags,
		Force:      true,
	}
	if r.httpProxy != "" {
		fetchOptions.ProxyOptions = transport.ProxyOptions{URL: r.httpProxy}
	}
	if len(refspecs) > 0 {
		logging.Logger.Debugw("using custom ref specs", "refspecs", refspecs)
		for _, refspec := range refspecs {
			fetchOptions.RefSpecs = append(fetchOptions.RefSpecs, gitconfig.RefSpec(refspec))
		}
	}
	err := r.repo.Fetch(fetchOptions)
	if err != nil && !errors.Is(err, git.NoErrAlreadyUpToDate) {
		return fmt.Errorf("failed to fetch %s remote for %s: %w",
			mainRemoteName, r.Name(), err)
	}
	return nil
}

// resolveReference resolves a branch, tag or commit name to a commit hash.
// Remote references have higher priority than local ones.
func (r *GitRepository) resolveReference(refName string) (plumbing.Hash, error) {
	candidates := []plumbing.Revision{
		plumbing.Revision(plumbing.NewRemoteReferenceName(mainRemoteName, refName)),
		plumbing.Revision(plumbing.NewTagReferenceName(refName)),
		plumbing.Revision(plumbing.NewBranchReferenceName(refName)),
		plumbing.Revision(refName),
	}
	for _, revision := range candidates {
		hash, err := r.repo.ResolveRevision(revision)
		if err == nil {
			return *hash, nil
		}
	}
	return plumbing.ZeroHash, fmt.Errorf("%w: %s at %s", ErrRefNotFound, refName, r.Name())
}

func (r *GitRepository) updateSubmodules(worktree *git.Worktree) error {
	submodules, err := worktree.Submodules()
	if err != nil {
		return err
	}
	for _, submodule := range submodules {
		logging.Logger.Infow("updating submodule",
			"name", submodule.Config().Name, "url", submodule.Config().URL)
	}
	if len(submodules) == 0 {
		return nil
	}
	return submodules.Update(&git.SubmoduleUpdateOptions{
		Init:              true,
		RecurseSubmodules: git.DefaultSubmoduleRecursionDepth,
	})
}

// Archive writes the repository worktree and its submodules into a single
// gzip-compressed tar file named after the archive prefix, placed in
// buildDir. go-git has no archive support, so the git binary does the tar
// generation while the compression happens in-process.
func (r *GitRepository) Archive(ctx context.Context, runner command.Runner, archiveName string, buildDir string) (string, error) {
	archiveFilePath := filepath.Join(buildDir, archiveName+".tar")
	logging.Logger.Infow("archiving repository", "name", r.Name(), "file", archiveFilePath)
	_, err := runner.Run(ctx, command.Command{
		Name: "git",
		Args: []string{"archive", "--format=tar",
			"--prefix=" + archiveName + "/", "-o", archiveFilePath, "HEAD"},
		Dir: r.path,
	})
	if err != nil {
		return "", err
	}

	worktree, err := r.repo.Worktree()
	if err != nil {
		return "", err
	}
	submodules, err := worktree.Submodules()
	if err != nil {
		return "", err
	}
	for _, submodule := range submodules {
		submoduleName := strings.ReplaceAll(submodule.Config().Name, "/", "_")
		submoduleArchivePath := filepath.Join(
			buildDir, fmt.Sprintf("%s-%s.tar", archiveName, submoduleName))
		logging.Logger.Infow("archiving submodule",
			"name", submodule.Config().Name, "file", submoduleArchivePath)
		prefix := filepath.Join(archiveName, submodule.Config().Path) + "/"
		_, err := runner.Run(ctx, command.Command{
			Name: "git",
			Args: []string{"archive", "--format=tar",
				"--prefix=" + prefix, "-o", submoduleArchivePath, "HEAD"},
			Dir: filepath.Join(r.path, submodule.Config().Path),
		})
		if err != nil {
			return "", err
		}
		// The tar --concatenate option misbehaves when more than two
		// files are concatenated at once, so append one at a time.
		_, err = runner.Run(ctx, command.Command{
			Name: "tar",
			Args: []string{"--concatenate", "--file", archiveFilePath, submoduleArchivePath},
		})
		if err != nil {
			return "", err
		}
	}

	return compressArchive(archiveFilePath)
}

func compressArchive(archiveFilePath string) (string, error) {
	compressedFilePath := archiveFilePath + ".gz"
	logging.Logger.Infow("compressing archive", "file", compressedFilePath)
	source, err := os.Open(archiveFilePath)
	if err != nil {
		return "", err
	}
	defer source.Close()
	target, err := os.Create(compressedFilePath)
	if err != nil {
		return "", err
	}
	defer target.Close()

	writer, err := gzip.NewWriterLevel(target, gzip.BestSpeed)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(writer, source); err != nil {
		return "", err
	}
	if err := writer.Close(); err != nil {
		return "", err
	}
	if err := os.Remove(archiveFilePath); err != nil {
		return "", err
	}
	return compressedFilePath, nil
}

// CommitChanges commits all changes made to the repository worktree.
func (r *GitRepository) CommitChanges(commitMessage string, committerName string, committerEmail string) error {
	worktree, err := r.repo.Worktree()
	if err != nil {
		return err
	}
	logging.Logger.Infow("adding files to repository index", "name", r.Name())
	if err := worktree.AddWithOptions(&git.AddOptions{All: true}); err != nil {
		return err
	}
	logging.Logger.Infow("committing changes to local repository", "name", r.Name())
	signature := &object.Signature{
		Name:  committerName,
		Email: committerEmail,
		When:  time.Now(),
	}
	_, err = worktree.Commit(commitMessage, &git.CommitOptions{
		Author:    signature,
		Committer: signature,
	})
	return err
}

// PushHeadCommits pushes commits from the local repository head to the
// remote repository, using the system's configured credentials.
func (r *GitRepository) PushHeadCommits(remoteRepoURL string, remoteRepoBranch string) error {
	if err := r.ForceCreateRemote(pushRemoteName, remoteRepoURL); err != nil {
		return err
	}
	logging.Logger.Infow("pushing changes to remote repository branch",
		"url", remoteRepoURL, "branch", remoteRepoBranch)
	refspec := gitconfig.RefSpec("HEAD:refs/heads/" + remoteRepoBranch)
	pushOptions := &git.PushOptions{
		RemoteName: pushRemoteName,
		RefSpecs:   []gitconfig.RefSpec{refspec},
	}
	if r.httpProxy != "" {
		pushOptions.ProxyOptions = transport.ProxyOptions{URL: r.httpProxy}
	}
	err := r.repo.Push(pushOptions)
	if errors.Is(err, git.NoErrAlreadyUpToDate) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("%w: %s", ErrPushRejected, err)
	}
	return nil
}

// ForceCreateRemote creates a remote, replacing a previous one with the same
// name if its URL differs.
func (r *GitRepository) ForceCreateRemote(name string, remoteURL string) error {
	remote, err := r.repo.Remote(name)
	if err == nil {
		previousURL := remote.Config().URLs[0]
		if previousURL == remoteURL {
			return nil
		}
		logging.Logger.Debugw("removing previous repository remote",
			"remote", name, "url", previousURL)
		if err := r.repo.DeleteRemote(name); err != nil {
			return err
		}
	} else if !errors.Is(err, git.ErrRemoteNotFound) {
		return err
	}
	logging.Logger.Debugw("creating repository remote", "remote", name, "url", remoteURL)
	_, err = r.repo.CreateRemote(&gitconfig.RemoteConfig{
		Name: name,
		URLs: []string{remoteURL},
	})
	return err
}
