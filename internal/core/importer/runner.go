package importer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"gut-health-kb/internal/core/ingredient"
	"gut-health-kb/internal/pkg/common"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DefaultMaxFileSize 單一匯入文件大小上限
const DefaultMaxFileSize int64 = 5 << 20

// 匯入結果分類，亦用於指標標籤
const (
	OutcomeCreated   = "created"
	OutcomeUpdated   = "updated"
	OutcomeReplaced  = "replaced"
	OutcomeSkipped   = "skipped"
	OutcomeValidated = "validated"
	OutcomeFailed    = "failed"
)

// Store 匯入所需的持久化操作
type Store interface {
	GetByName(ctx context.Context, name string) (*ingredient.Ingredient, error)
	Create(ctx context.Context, c *ingredient.Complete) (uuid.UUID, error)
	Update(ctx context.Context, id uuid.UUID, fields map[string]interface{}) (bool, error)
	Replace(ctx context.Context, c *ingredient.Complete) (uuid.UUID, error)
}

// Recorder 記錄匯入結果（例如 prometheus 計數器）
type Recorder interface {
	RecordImport(outcome string)
}

// Options 匯入模式
type Options struct {
	DryRun         bool `json:"dry_run" form:"dry_run"`
	UpdateExisting bool `json:"update_existing" form:"update_existing"`
	SkipDuplicates bool `json:"skip_duplicates" form:"skip_duplicates"`
	ForceImport    bool `json:"force_import" form:"force_import"`
}

// Validate 已存在成分的處理方式只能擇一
func (o Options) Validate() error {
	n := 0
	for _, set := range []bool{o.UpdateExisting, o.SkipDuplicates, o.ForceImport} {
		if set {
			n++
		}
	}
	if n > 1 {
		return common.ErrInvalidRequest.WithMessage("update_existing, skip_duplicates and force_import are mutually exclusive")
	}
	return nil
}

// Issue 匯入過程中的錯誤或警告
type Issue struct {
	Source  string `json:"source"`
	Field   string `json:"field,omitempty"`
	Message string `json:"message"`
}

// Result 匯入結果
type Result struct {
	SuccessCount int           `json:"success_count"`
	FailureCount int           `json:"failure_count"`
	SkippedCount int           `json:"skipped_count"`
	Errors       []Issue       `json:"errors"`
	Warnings     []Issue       `json:"warnings"`
	ImportedIDs  []uuid.UUID   `json:"imported_ids"`
	Outcomes     []FileOutcome `json:"outcomes"`
	Duration     time.Duration `json:"duration"`
	DryRun       bool          `json:"dry_run"`

	started time.Time
}

// FileOutcome 單一文件的處理結果
type FileOutcome struct {
	Source  string    `json:"source"`
	Outcome string    `json:"outcome"`
	ID      uuid.UUID `json:"id,omitempty"`
	Name    string    `json:"name,omitempty"`
	Message string    `json:"message"`
}

// ResultSummary 匯入結果摘要
type ResultSummary struct {
	TotalProcessed  int     `json:"total_processed"`
	Successful      int     `json:"successful"`
	Failed          int     `json:"failed"`
	Skipped         int     `json:"skipped"`
	DurationSeconds float64 `json:"duration_seconds"`
	Errors          int     `json:"errors"`
	Warnings        int     `json:"warnings"`
}

func newResult(dryRun bool) *Result {
	return &Result{
		Errors:      []Issue{},
		Warnings:    []Issue{},
		ImportedIDs: []uuid.UUID{},
		Outcomes:    []FileOutcome{},
		DryRun:      dryRun,
		started:     time.Now(),
	}
}

// TotalProcessed 已處理的文件數
func (r *Result) TotalProcessed() int {
	return r.SuccessCount + r.FailureCount + r.SkippedCount
}

// Summary 產生摘要
func (r *Result) Summary() ResultSummary {
	return ResultSummary{
		TotalProcessed:  r.TotalProcessed(),
		Successful:      r.SuccessCount,
		Failed:          r.FailureCount,
		Skipped:         r.SkippedCount,
		DurationSeconds: r.Duration.Seconds(),
		Errors:          len(r.Errors),
		Warnings:        len(r.Warnings),
	}
}

// Err 有失敗時回傳彙總錯誤
func (r *Result) Err() error {
	if r.FailureCount == 0 {
		return nil
	}
	return fmt.Errorf("%d of %d documents failed to import", r.FailureCount, r.TotalProcessed())
}

func (r *Result) finish() *Result {
	r.Duration = time.Since(r.started)
	return r
}

func (r *Result) warn(source, message string) {
	r.Warnings = append(r.Warnings, Issue{Source: source, Message: message})
}

func (r *Result) record(o FileOutcome) {
	r.Outcomes = append(r.Outcomes, o)
	switch o.Outcome {
	case OutcomeFailed:
		r.FailureCount++
	case OutcomeSkipped:
		r.SkippedCount++
		r.warn(o.Source, o.Message)
	default:
		r.SuccessCount++
		if o.ID != uuid.Nil {
			r.ImportedIDs = append(r.ImportedIDs, o.ID)
		}
	}
}

func (r *Result) fail(source string, err error) {
	var fieldErrs FieldErrors
	if errors.As(err, &fieldErrs) {
		for _, fe := range fieldErrs {
			r.Errors = append(r.Errors, Issue{Source: source, Field: fe.Field, Message: fe.Message})
		}
	} else {
		r.Errors = append(r.Errors, Issue{Source: source, Message: err.Error()})
	}
	r.record(FileOutcome{Source: source, Outcome: OutcomeFailed, Message: err.Error()})
}

// Runner 驗證並依模式寫入匯入文件，文件之間依序處理
type Runner struct {
	store     Store
	validator *Validator

	// MaxFileSize 單一文件大小上限，0 表示使用預設值
	MaxFileSize int64
	// Recorder 可選的結果記錄器
	Recorder Recorder
}

// NewRunner 創建匯入執行器，validator 為 nil 時使用預設驗證器
func NewRunner(store Store, validator *Validator) *Runner {
	if validator == nil {
		validator = NewValidator()
	}
	return &Runner{store: store, validator: validator}
}

// Validator 回傳使用中的驗證器
func (r *Runner) Validator() *Validator {
	return r.validator
}

func (r *Runner) maxFileSize() int64 {
	if r.MaxFileSize > 0 {
		return r.MaxFileSize
	}
	return DefaultMaxFileSize
}

// ImportDocument 匯入單一文件內容，source 用於錯誤訊息
func (r *Runner) ImportDocument(ctx context.Context, source string, raw []byte, opts Options) (*Result, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	res := newResult(opts.DryRun)
	r.importOne(ctx, res, source, raw, opts)
	return res.finish(), nil
}

// ImportFile 匯入單一 JSON 文件
func (r *Runner) ImportFile(ctx context.Context, path string, opts Options) (*Result, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	res := newResult(opts.DryRun)
	source := filepath.Base(path)
	raw, err := r.readFile(path)
	if err != nil {
		res.fail(source, err)
		return res.finish(), nil
	}
	r.importOne(ctx, res, source, raw, opts)
	return res.finish(), nil
}

// ImportDirectory 依檔名順序匯入目錄中所有 *.json，context 取消時停止處理後續文件
func (r *Runner) ImportDirectory(ctx context.Context, dir string, opts Options) (*Result, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	res := newResult(opts.DryRun)
	files, err := jsonFiles(dir)
	if err != nil {
		res.fail("directory", err)
		return res.finish(), nil
	}
	if len(files) == 0 {
		res.warn("directory", fmt.Sprintf("no JSON files found in %s", dir))
		return res.finish(), nil
	}

	common.LogInfo("開始批次匯入", zap.String("directory", dir), zap.Int("files", len(files)))
	for _, path := range files {
		if err := ctx.Err(); err != nil {
			res.warn("directory", fmt.Sprintf("import cancelled before %s", filepath.Base(path)))
			break
		}
		source := filepath.Base(path)
		raw, err := r.readFile(path)
		if err != nil {
			res.fail(source, err)
			continue
		}
		r.importOne(ctx, res, source, raw, opts)
	}
	res.finish()
	common.LogInfo("匯入完成",
		zap.String("directory", dir),
		zap.Int("success", res.SuccessCount),
		zap.Int("failed", res.FailureCount),
		zap.Int("skipped", res.SkippedCount),
		zap.Duration("duration", res.Duration),
	)
	return res, nil
}

// ValidateDirectory 只驗證目錄中的文件，不寫入資料庫
func (r *Runner) ValidateDirectory(ctx context.Context, dir string) (*Result, error) {
	return r.ImportDirectory(ctx, dir, Options{DryRun: true})
}

func (r *Runner) readFile(path string) ([]byte, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if info.Size() > r.maxFileSize() {
		return nil, fmt.Errorf("file exceeds %d bytes", r.maxFileSize())
	}
	return os.ReadFile(path)
}

func jsonFiles(dir string) ([]string, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("directory not found: %s", dir)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("not a directory: %s", dir)
	}
	files, err := filepath.Glob(filepath.Join(dir, "*.json"))
	if err != nil {
		return nil, err
	}
	sort.Strings(files)
	return files, nil
}

func (r *Runner) importOne(ctx context.Context, res *Result, source string, raw []byte, opts Options) {
	outcome, err := r.apply(ctx, raw, opts)
	outcome.Source = source
	if err != nil {
		common.LogImport(source, false, err.Error())
		r.observe(OutcomeFailed)
		res.fail(source, err)
		return
	}
	common.LogImport(source, true, outcome.Message)
	r.observe(outcome.Outcome)
	res.record(outcome)
}

func (r *Runner) observe(outcome string) {
	if r.Recorder != nil {
		r.Recorder.RecordImport(outcome)
	}
}

// apply 驗證文件並依模式處理既有成分
func (r *Runner) apply(ctx context.Context, raw []byte, opts Options) (FileOutcome, error) {
	complete, fieldErrs, err := r.validator.Validate(raw)
	if err != nil {
		return FileOutcome{}, err
	}
	if len(fieldErrs) > 0 {
		return FileOutcome{}, fieldErrs
	}

	name := complete.Ingredient.Name
	if opts.DryRun {
		return FileOutcome{
			Outcome: OutcomeValidated,
			Name:    name,
			Message: fmt.Sprintf("dry run successful, would import %s", name),
		}, nil
	}

	existing, err := r.store.GetByName(ctx, name)
	if err != nil && !errors.Is(err, common.ErrIngredientNotFound) {
		return FileOutcome{}, err
	}

	if existing != nil {
		switch {
		case opts.SkipDuplicates:
			return FileOutcome{
				Outcome: OutcomeSkipped,
				ID:      existing.ID,
				Name:    name,
				Message: fmt.Sprintf("skipped duplicate: %s", name),
			}, nil
		case opts.UpdateExisting:
			if _, err := r.store.Update(ctx, existing.ID, complete.Ingredient.CoreFields()); err != nil {
				return FileOutcome{}, err
			}
			return FileOutcome{
				Outcome: OutcomeUpdated,
				ID:      existing.ID,
				Name:    name,
				Message: fmt.Sprintf("updated existing ingredient: %s", name),
			}, nil
		case opts.ForceImport:
			id, err := r.store.Replace(ctx, complete)
			if err != nil {
				return FileOutcome{}, err
			}
			return FileOutcome{
				Outcome: OutcomeReplaced,
				ID:      id,
				Name:    name,
				Message: fmt.Sprintf("replaced existing ingredient: %s", name),
			}, nil
		default:
			return FileOutcome{}, common.ErrDuplicateIngredient.WithMessage(
				fmt.Sprintf("ingredient already exists: %s", strings.TrimSpace(name)))
		}
	}

	id, err := r.store.Create(ctx, complete)
	if err != nil {
		return FileOutcome{}, err
	}
	return FileOutcome{
		Outcome: OutcomeCreated,
		ID:      id,
		Name:    name,
		Message: fmt.Sprintf("successfully imported: %s", name),
	}, nil
}
