package steps

import (
	"context"
	"io"
	"net/http"

	"github.com/BurntSushi/toml"

	"git.home.luguber.info/inful/sitepress/internal/custody"
	builderr "git.home.luguber.info/inful/sitepress/internal/errors"
	"git.home.luguber.info/inful/sitepress/internal/pipeline"
)

// EntryTypeURL is the custody entry type for fetched remote resources.
const EntryTypeURL = "url"

const fieldETag = "etag"

// fetchDescriptor is the TOML document a fetch source file contains.
type fetchDescriptor struct {
	URL string `toml:"url"`
}

// FetchStep downloads the URL named in a descriptor file. The remote
// resource joins the custody graph as a url entry carrying the response
// ETag, so later runs revalidate it with a conditional request instead of
// refetching.
type FetchStep struct {
	Client *http.Client
}

func (*FetchStep) Name() string { return NameFetch }

// Bind registers the url checker. override=false keeps a user-registered
// replacement in place.
func (s *FetchStep) Bind(p *pipeline.Pipeline) error {
	p.Custodian().RegisterChecker(EntryTypeURL, s.checkURL, false)
	return nil
}

func (s *FetchStep) Run(ctx context.Context, source string, outputs []string) (*pipeline.Result, error) {
	var desc fetchDescriptor
	if _, err := toml.DecodeFile(source, &desc); err != nil {
		return nil, builderr.Wrap(err, builderr.CategoryValidation, builderr.SeverityFatal,
			"parsing fetch descriptor")
	}
	if desc.URL == "" {
		return nil, builderr.ValidationFailed("url", "fetch descriptor must name a url")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, desc.URL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := s.client().Do(req)
	if err != nil {
		return nil, builderr.Wrap(err, builderr.CategoryNetwork, builderr.SeverityError,
			"fetching "+desc.URL)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, builderr.New(builderr.CategoryNetwork, builderr.SeverityError,
			"unexpected status fetching remote resource").
			WithContext("url", desc.URL).
			WithContext("status", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if err := writeOutputs(outputs, body); err != nil {
		return nil, err
	}

	entry := custody.NewEntry(EntryTypeURL, desc.URL, map[string]any{
		fieldETag: resp.Header.Get("ETag"),
	})
	return &pipeline.Result{
		Sources: []custody.Source{
			custody.PathSource(source),
			custody.EntrySource(entry),
		},
	}, nil
}

// checkURL revalidates a fetched resource with a conditional GET: a 304
// means the remote content behind the recorded ETag is unchanged. A missing
// or empty recorded ETag always refetches.
func (s *FetchStep) checkURL(entry custody.Entry) (bool, error) {
	etag, err := entry.StringField(fieldETag)
	if err != nil || etag == "" {
		return false, nil
	}
	req, err := http.NewRequest(http.MethodGet, entry.Key, nil)
	if err != nil {
		return false, err
	}
	req.Header.Set("If-None-Match", etag)
	resp, err := s.client().Do(req)
	if err != nil {
		return false, builderr.Wrap(err, builderr.CategoryNetwork, builderr.SeverityError,
			"revalidating "+entry.Key)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	return resp.StatusCode == http.StatusNotModified, nil
}

func (s *FetchStep) client() *http.Client {
	if s.Client != nil {
		return s.Client
	}
	return http.DefaultClient
}
