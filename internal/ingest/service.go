// Package ingest receives statement files and drives them through
// validation, deduplication, account resolution and background processing.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/dvloznov/ofx-ingest/internal/batch"
	"github.com/dvloznov/ofx-ingest/internal/checksum"
	"github.com/dvloznov/ofx-ingest/internal/domain"
	"github.com/dvloznov/ofx-ingest/internal/filestore"
	"github.com/dvloznov/ofx-ingest/internal/jobs"
	"github.com/dvloznov/ofx-ingest/internal/logger"
	"github.com/dvloznov/ofx-ingest/internal/ofx"
	"github.com/dvloznov/ofx-ingest/internal/progress"
	"github.com/dvloznov/ofx-ingest/internal/store"
)

const DefaultMaxBytes = 10 << 20

// secondsPerBatch is the rough per-chunk time used for the estimate returned
// to clients at upload time.
const secondsPerBatch = 2

type AccountResolver interface {
	Resolve(ctx context.Context, companyID string, info *ofx.AccountInfo, balance ofx.Balance) (*domain.Account, error)
}

type Processor interface {
	Process(ctx context.Context, uploadID string, items []ofx.Item, opts batch.Options) (*batch.Outcome, error)
	ChunkSize() int
}

// UploadSink receives the summary of every finished upload.
type UploadSink interface {
	ExportUpload(ctx context.Context, upload *domain.Upload) error
}

type Deps struct {
	Uploads   store.UploadRepository
	Batches   store.BatchRepository
	Accounts  AccountResolver
	Files     filestore.FileStore
	Processor Processor
	Tracker   *progress.Store
	Publisher jobs.Publisher
	Canceller jobs.Canceller
	Sink      UploadSink // optional
}

type Config struct {
	MaxBytes int64
}

type Service struct {
	Deps
	cfg Config
	log zerolog.Logger
	now func() time.Time
}

func New(deps Deps, cfg Config, log zerolog.Logger) *Service {
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = DefaultMaxBytes
	}
	return &Service{Deps: deps, cfg: cfg, log: log, now: time.Now}
}

// Request is one received statement file.
type Request struct {
	CompanyID string
	Filename  string
	Content   []byte
}

// Receipt is what the caller learns about an accepted upload.
type Receipt struct {
	Upload           *domain.Upload
	Account          *domain.Account
	Document         *ofx.Document
	JobID            string
	EstimatedSeconds int
}

// EstimatedSeconds is the rough processing time announced for n items.
func EstimatedSeconds(n int) int {
	return int(math.Ceil(float64(n) / float64(batch.DefaultChunkSize) * secondsPerBatch))
}

// Validate checks the file signature and parses it without persisting
// anything.
func (s *Service) Validate(filename string, content []byte) (*ofx.Document, error) {
	if int64(len(content)) > s.cfg.MaxBytes {
		return nil, &FileTooLargeError{Size: int64(len(content)), Max: s.cfg.MaxBytes}
	}
	if err := ofx.Sniff(filename, content); err != nil {
		return nil, err
	}
	doc, err := ofx.Parse(string(content))
	if err != nil {
		return nil, err
	}
	return doc, nil
}

// Ingest accepts a file: it rejects duplicates, resolves the account, stores
// the raw file, records a pending upload and enqueues its processing.
func (s *Service) Ingest(ctx context.Context, req Request) (*Receipt, error) {
	log := s.log.With().Str("company_id", req.CompanyID).Str("file", req.Filename).Logger()

	doc, err := s.Validate(req.Filename, req.Content)
	if err != nil {
		return nil, err
	}

	hash := checksum.Sum(req.Content)
	if existing, err := s.Uploads.FindUploadByHash(ctx, req.CompanyID, hash); err != nil {
		return nil, fmt.Errorf("Ingest: find by hash: %w", err)
	} else if existing != nil {
		log.Info().Str("upload_id", existing.ID).Msg("duplicate upload rejected")
		return nil, duplicateOf(existing)
	}

	account, err := s.Accounts.Resolve(ctx, req.CompanyID, &doc.Account, doc.Balance)
	if err != nil {
		return nil, err
	}

	meta, err := s.Files.Save(ctx, req.CompanyID, req.Filename, req.Content)
	if err != nil {
		return nil, fmt.Errorf("Ingest: store file: %w", err)
	}

	chunk := s.Processor.ChunkSize()
	u := &domain.Upload{
		ID:                uuid.NewString(),
		CompanyID:         req.CompanyID,
		AccountID:         account.ID,
		OriginalName:      req.Filename,
		StoredPath:        meta.RelativePath,
		StorageProvider:   s.Files.Provider(),
		FileSize:          int64(len(req.Content)),
		FileHash:          hash,
		Status:            domain.UploadPending,
		TotalTransactions: len(doc.Items),
		TotalBatches:      progress.TotalBatches(len(doc.Items), chunk),
		UploadedAt:        s.now().UTC(),
	}
	if err := s.Uploads.CreateUpload(ctx, u); err != nil {
		if derr := s.Files.Delete(ctx, meta.RelativePath); derr != nil {
			log.Warn().Err(derr).Str("path", meta.RelativePath).Msg("failed to remove orphaned file")
		}
		if errors.Is(err, store.ErrConflict) {
			if existing, ferr := s.Uploads.FindUploadByHash(ctx, req.CompanyID, hash); ferr == nil && existing != nil {
				return nil, duplicateOf(existing)
			}
		}
		return nil, fmt.Errorf("Ingest: create upload: %w", err)
	}

	ctx = logger.WithContext(ctx, logger.ForUpload(s.log, u.ID, u.CompanyID))
	log = logger.FromContext(ctx)

	job := &jobs.ProcessUploadJob{UploadID: u.ID, CompanyID: u.CompanyID}
	if err := s.Publisher.PublishProcessUpload(ctx, job); err != nil {
		// The upload stays pending and is picked up by recovery.
		log.Error().Err(err).Msg("failed to enqueue upload")
	} else {
		log.Info().Str("job_id", job.JobID).Int("transactions", len(doc.Items)).Msg("upload accepted")
	}

	return &Receipt{
		Upload:           u,
		Account:          account,
		Document:         doc,
		JobID:            job.JobID,
		EstimatedSeconds: EstimatedSeconds(len(doc.Items)),
	}, nil
}

// Handle is the job handler: it reloads the stored file and processes the
// upload, resuming after finished batches.
func (s *Service) Handle(ctx context.Context, j jobs.Job) error {
	job, ok := j.(*jobs.ProcessUploadJob)
	if !ok {
		return fmt.Errorf("Handle: unexpected job type %s", j.GetType())
	}
	log := logger.ForUpload(s.log, job.UploadID, job.CompanyID)

	u, err := s.Uploads.GetUpload(ctx, job.UploadID)
	if err != nil {
		return fmt.Errorf("Handle: %w", err)
	}
	if u.Status.Terminal() {
		log.Info().Str("status", string(u.Status)).Msg("upload already finished, skipping")
		return nil
	}

	raw, err := s.Files.Read(ctx, u.StoredPath)
	if err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("Handle: %w", err)
		}
		s.failUpload(ctx, u, err, "load")
		return fmt.Errorf("Handle: %w", err)
	}
	doc, err := ofx.Parse(string(raw))
	if err != nil {
		s.failUpload(ctx, u, err, "parse")
		return fmt.Errorf("Handle: %w", err)
	}

	out, err := s.Processor.Process(ctx, u.ID, doc.Items, batch.Options{
		AccountID:  u.AccountID,
		CompanyID:  u.CompanyID,
		ResumeFrom: job.ResumeFrom,
	})
	if out != nil && out.Status.Terminal() {
		s.exportSummary(ctx, u.ID, log)
	}
	if err != nil {
		// No outcome means the run failed before any chunk; the upload would
		// otherwise stay processing and be picked up again by every recovery.
		if out == nil && ctx.Err() == nil && !errors.Is(err, batch.ErrInterrupted) {
			s.failUpload(ctx, u, err, "process")
		}
		return fmt.Errorf("Handle: %w", err)
	}
	return nil
}

// failUpload records a failure that happened before chunk processing began.
func (s *Service) failUpload(ctx context.Context, u *domain.Upload, cause error, stage string) {
	if err := s.Tracker.Fail(context.WithoutCancel(ctx), u, cause, stage); err != nil {
		s.log.Error().Err(err).Str("upload_id", u.ID).Msg("failed to mark upload failed")
	}
}

func (s *Service) exportSummary(ctx context.Context, uploadID string, log zerolog.Logger) {
	if s.Sink == nil {
		return
	}
	u, err := s.Uploads.GetUpload(context.WithoutCancel(ctx), uploadID)
	if err != nil {
		log.Warn().Err(err).Msg("reload upload for export")
		return
	}
	if err := s.Sink.ExportUpload(context.WithoutCancel(ctx), u); err != nil {
		log.Warn().Err(err).Msg("warehouse upload export failed")
	}
}

// Stranded builds resume jobs for uploads left pending or processing.
func (s *Service) Stranded(ctx context.Context) ([]*jobs.ProcessUploadJob, error) {
	uploads, err := s.Uploads.ListUploadsByStatus(ctx, domain.UploadPending, domain.UploadProcessing)
	if err != nil {
		return nil, fmt.Errorf("Stranded: %w", err)
	}

	out := make([]*jobs.ProcessUploadJob, 0, len(uploads))
	for _, u := range uploads {
		resume, err := s.resumeOffset(ctx, u.ID)
		if err != nil {
			return nil, fmt.Errorf("Stranded: %w", err)
		}
		out = append(out, &jobs.ProcessUploadJob{UploadID: u.ID, CompanyID: u.CompanyID, ResumeFrom: resume})
	}
	return out, nil
}

// resumeOffset is the item offset after the leading run of finished batches.
func (s *Service) resumeOffset(ctx context.Context, uploadID string) (int, error) {
	batches, err := s.Batches.ListBatches(ctx, uploadID)
	if err != nil {
		return 0, err
	}
	offset := 0
	for i, b := range batches {
		if b.BatchNumber != i+1 || b.Status == domain.BatchProcessing {
			break
		}
		offset = b.Offset + b.ItemCount
	}
	return offset, nil
}

// Recover re-enqueues stranded uploads. It returns how many were enqueued.
func (s *Service) Recover(ctx context.Context) (int, error) {
	stranded, err := s.Stranded(ctx)
	if err != nil {
		return 0, fmt.Errorf("Recover: %w", err)
	}

	n := 0
	for _, job := range stranded {
		err := s.Publisher.PublishProcessUpload(ctx, job)
		if errors.Is(err, jobs.ErrAlreadyQueued) {
			continue
		}
		if err != nil {
			return n, fmt.Errorf("Recover: %w", err)
		}
		s.log.Info().Str("upload_id", job.UploadID).Int("resume_from", job.ResumeFrom).Msg("upload re-enqueued")
		n++
	}
	return n, nil
}

// ListUploads returns the company's uploads, newest first.
func (s *Service) ListUploads(ctx context.Context, companyID string) ([]*domain.Upload, error) {
	uploads, err := s.Uploads.ListUploads(ctx, companyID)
	if err != nil {
		return nil, fmt.Errorf("ListUploads: %w", err)
	}
	return uploads, nil
}

// Upload returns one of the company's uploads, or store.ErrNotFound.
func (s *Service) Upload(ctx context.Context, companyID, uploadID string) (*domain.Upload, error) {
	u, err := s.Uploads.GetUpload(ctx, uploadID)
	if err != nil {
		return nil, fmt.Errorf("Upload: %w", err)
	}
	if u.CompanyID != companyID {
		return nil, fmt.Errorf("Upload: %s: %w", uploadID, store.ErrNotFound)
	}
	return u, nil
}

// Progress returns the polling view of one of the company's uploads.
func (s *Service) Progress(ctx context.Context, companyID, uploadID string) (*progress.Snapshot, error) {
	if _, err := s.Upload(ctx, companyID, uploadID); err != nil {
		return nil, err
	}
	return s.Tracker.Snapshot(ctx, uploadID)
}

// Cancel stops the running job of an upload. The upload ends failed with
// "processing cancelled".
func (s *Service) Cancel(ctx context.Context, companyID, uploadID string) error {
	u, err := s.Upload(ctx, companyID, uploadID)
	if err != nil {
		return err
	}
	if u.Status.Terminal() || !s.Canceller.Cancel(uploadID, batch.ErrCancelled) {
		return fmt.Errorf("Cancel: %s: %w", uploadID, ErrNotRunning)
	}
	s.log.Info().Str("upload_id", uploadID).Msg("cancellation requested")
	return nil
}
