package engine

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/prismd/prismd/internal/errors"
	"github.com/prismd/prismd/internal/highlight"
	"github.com/prismd/prismd/internal/language"
	"github.com/prismd/prismd/internal/logging"
	"github.com/prismd/prismd/internal/pool"
	"github.com/prismd/prismd/internal/registry"
)

// Encoding is a file's declared content encoding. Only UTF-8 is supported;
// anything else is a per-file failure, never a silent transcode.
type Encoding uint8

const (
	EncodingUTF8 Encoding = iota
	EncodingUTF16
)

// File is the decoded, zero-copy view of one submitted document. Contents
// is borrowed from the request buffer, which must outlive the batch.
type File struct {
	Ident    uint16
	Filename string
	Language language.ID
	Encoding Encoding
	Contents []byte
	Options  []string
}

// Request is one decoded batch. TimeoutMS of zero means the configured
// default per-file timeout.
type Request struct {
	Files     []File
	TimeoutMS uint32
}

// Document is one successfully rendered file.
type Document struct {
	Ident    uint16
	Filename string
	Language language.ID
	Lines    []string
}

// Failure is one file's typed failure.
type Failure struct {
	Ident  uint16
	Reason errors.FailKind
}

// Response accounts for every submitted ident exactly once, as either a
// Document or a Failure. Entry order follows input order but carries no
// contract; correlation is by ident.
type Response struct {
	Documents []Document
	Failures  []Failure
}

// Config parameterizes a Coordinator.
type Config struct {
	Registry *registry.Table
	Pool     *pool.Pool
	Renderer DocRenderer
	// DefaultTimeout applies per file when a request omits one.
	DefaultTimeout time.Duration
	// MaxTimeout bounds what a request may ask for; larger values reject
	// the whole request.
	MaxTimeout time.Duration
	Logger     logging.Logger
}

// Coordinator drives one request end to end: resolve languages, dispatch
// one job per file, await all outcomes, assemble the response.
//
// Duplicate idents within one request are resolved last-write-wins: the
// later file's outcome replaces the earlier one's in the response.
type Coordinator struct {
	registry *registry.Table
	pool     *pool.Pool
	renderer DocRenderer

	defaultTimeout time.Duration
	maxTimeout     time.Duration
	log            logging.Logger
}

// NewCoordinator builds a Coordinator.
func NewCoordinator(cfg Config) *Coordinator {
	log := cfg.Logger
	if log == nil {
		log = logging.Nop()
	}
	return &Coordinator{
		registry:       cfg.Registry,
		pool:           cfg.Pool,
		renderer:       cfg.Renderer,
		defaultTimeout: cfg.DefaultTimeout,
		maxTimeout:     cfg.MaxTimeout,
		log:            log.WithComponent("coordinator"),
	}
}

// Process runs one batch. A non-nil error is a whole-request rejection
// (over-max timeout); per-file problems become Failure entries instead.
// The request buffer backing the file views must stay alive until Process
// returns: no job outlives this call.
func (c *Coordinator) Process(ctx context.Context, req *Request) (*Response, error) {
	timeout := c.defaultTimeout
	if req.TimeoutMS > 0 {
		requested := time.Duration(req.TimeoutMS) * time.Millisecond
		if requested > c.maxTimeout {
			return nil, errors.TimeoutTooLarge(int64(req.TimeoutMS), c.maxTimeout.Milliseconds())
		}
		timeout = requested
	}

	outcomes := make([]Outcome, len(req.Files))
	var g errgroup.Group

	for i, f := range req.Files {
		if f.Encoding != EncodingUTF8 {
			outcomes[i] = Outcome{
				Ident:    f.Ident,
				Filename: f.Filename,
				Language: f.Language,
				Err:      errors.InvalidEncoding(errors.New("declared encoding is not UTF-8")),
			}
			continue
		}

		lang := f.Language
		if lang == language.Unspecified {
			lang = language.DetectWithShebang(f.Filename, firstLine(f.Contents))
		}
		entry, err := c.registry.Resolve(lang)
		if err != nil {
			// Short-circuits this file only; no worker slot is consumed.
			outcomes[i] = Outcome{
				Ident:    f.Ident,
				Filename: f.Filename,
				Language: f.Language,
				Err:      errors.UnknownLanguage(lang.String()),
			}
			continue
		}

		if len(f.Contents) == 0 {
			outcomes[i] = Outcome{Ident: f.Ident, Filename: f.Filename, Language: lang}
			continue
		}

		job := NewJob(f.Ident, f.Filename, lang, f.Contents, highlight.ParseOptions(f.Options),
			entry, c.registry, c.renderer, time.Now().Add(timeout))

		if err := c.pool.Submit(ctx, job); err != nil {
			outcomes[i] = Outcome{
				Ident:    f.Ident,
				Filename: f.Filename,
				Language: lang,
				Err:      errors.Cancelled("job could not be admitted"),
			}
			continue
		}

		idx := i
		g.Go(func() error {
			<-job.Done()
			outcomes[idx] = job.Outcome()
			return nil
		})
	}

	// The batch has no timeout of its own: it completes when every job is
	// terminal, which each job's own deadline guarantees.
	_ = g.Wait()

	return c.assemble(outcomes), nil
}

// firstLine returns the first line of src, capped so a file with no
// newlines does not allocate a huge string just for shebang sniffing.
func firstLine(src []byte) string {
	const maxShebang = 128
	end := len(src)
	if end > maxShebang {
		end = maxShebang
	}
	for i := 0; i < end; i++ {
		if src[i] == '\n' {
			end = i
			break
		}
	}
	return string(src[:end])
}

// assemble folds outcomes into a Response, deduplicating idents
// last-write-wins.
func (c *Coordinator) assemble(outcomes []Outcome) *Response {
	keep := make(map[uint16]int, len(outcomes))
	order := make([]uint16, 0, len(outcomes))
	for i, out := range outcomes {
		if _, dup := keep[out.Ident]; !dup {
			order = append(order, out.Ident)
		}
		keep[out.Ident] = i
	}

	resp := &Response{}
	for _, ident := range order {
		out := outcomes[keep[ident]]
		if out.Err != nil {
			resp.Failures = append(resp.Failures, Failure{Ident: out.Ident, Reason: out.Err.Kind})
			continue
		}
		resp.Documents = append(resp.Documents, Document{
			Ident:    out.Ident,
			Filename: out.Filename,
			Language: out.Language,
			Lines:    out.Lines,
		})
	}
	return resp
}
