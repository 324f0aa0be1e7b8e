package steps

import (
	"context"
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
	gogit "github.com/go-git/go-git/v5"
	gitcfg "github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/storage/memory"

	"git.home.luguber.info/inful/sitepress/internal/custody"
	builderr "git.home.luguber.info/inful/sitepress/internal/errors"
	"git.home.luguber.info/inful/sitepress/internal/pipeline"
)

// EntryTypeGit is the custody entry type for cloned git repositories.
const EntryTypeGit = "git"

const (
	fieldHash = "hash"
	fieldRef  = "ref"
)

// gitDescriptor is the TOML document a git source file contains.
type gitDescriptor struct {
	URL string `toml:"url"`
	Ref string `toml:"ref"` // full reference name; empty means HEAD
}

// GitSourceStep clones the repository named in a descriptor file into its
// output directory. The remote joins the custody graph as a git entry
// carrying the cloned commit hash; later runs ask the remote for its current
// head instead of re-cloning. Checked-out files join the custody record
// individually, so a member lost between runs marks the clone stale.
type GitSourceStep struct{}

func (*GitSourceStep) Name() string { return NameGitSource }

func (*GitSourceStep) Bind(p *pipeline.Pipeline) error {
	p.Custodian().RegisterChecker(EntryTypeGit, checkGitRemote, false)
	return nil
}

func (*GitSourceStep) Run(ctx context.Context, source string, outputs []string) (*pipeline.Result, error) {
	if len(outputs) != 1 {
		return nil, fmt.Errorf("git-source expects exactly one output directory, got %d", len(outputs))
	}
	var desc gitDescriptor
	if _, err := toml.DecodeFile(source, &desc); err != nil {
		return nil, builderr.Wrap(err, builderr.CategoryValidation, builderr.SeverityFatal,
			"parsing git descriptor")
	}
	if desc.URL == "" {
		return nil, builderr.ValidationFailed("url", "git descriptor must name a url")
	}

	dest := outputs[0]
	if err := os.RemoveAll(dest); err != nil {
		return nil, err
	}

	opts := &gogit.CloneOptions{URL: desc.URL}
	if desc.Ref != "" {
		opts.ReferenceName = plumbing.ReferenceName(desc.Ref)
		opts.SingleBranch = true
	}
	repo, err := gogit.PlainCloneContext(ctx, dest, false, opts)
	if err != nil {
		return nil, builderr.Wrap(err, builderr.CategoryGit, builderr.SeverityError,
			"cloning "+desc.URL)
	}
	head, err := repo.Head()
	if err != nil {
		return nil, builderr.Wrap(err, builderr.CategoryGit, builderr.SeverityError,
			"resolving cloned head")
	}

	// Repository internals under .git churn on their own; only the checkout
	// is tracked.
	members, err := collectFiles(dest, gogit.GitDirName)
	if err != nil {
		return nil, builderr.Wrap(err, builderr.CategoryFileSystem, builderr.SeverityError,
			"listing cloned files")
	}

	entry := custody.NewEntry(EntryTypeGit, desc.URL, map[string]any{
		fieldHash: head.Hash().String(),
		fieldRef:  desc.Ref,
	})
	return &pipeline.Result{
		Sources: []custody.Source{
			custody.PathSource(source),
			custody.EntrySource(entry),
		},
		Outputs: append([]string{dest}, members...),
	}, nil
}

// checkGitRemote asks the remote for its current head without cloning: the
// clone is fresh while the remote still points at the recorded hash.
func checkGitRemote(entry custody.Entry) (bool, error) {
	want, err := entry.StringField(fieldHash)
	if err != nil || want == "" {
		return false, nil
	}
	refName := "HEAD"
	if ref, err := entry.StringField(fieldRef); err == nil && ref != "" {
		refName = ref
	}

	remote := gogit.NewRemote(memory.NewStorage(), &gitcfg.RemoteConfig{
		Name: "origin",
		URLs: []string{entry.Key},
	})
	refs, err := remote.List(&gogit.ListOptions{})
	if err != nil {
		return false, builderr.Wrap(err, builderr.CategoryGit, builderr.SeverityError,
			"listing remote "+entry.Key)
	}
	byName := make(map[string]*plumbing.Reference, len(refs))
	for _, ref := range refs {
		byName[ref.Name().String()] = ref
	}
	ref, ok := byName[refName]
	if !ok {
		return false, nil
	}
	// HEAD comes back symbolic; follow it to the branch it names.
	if ref.Type() == plumbing.SymbolicReference {
		if ref, ok = byName[ref.Target().String()]; !ok {
			return false, nil
		}
	}
	return ref.Hash().String() == want, nil
}
