package subscriber

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hitoshi/leadbox/internal/convertkit"
	"github.com/hitoshi/leadbox/internal/metrics"
	"github.com/hitoshi/leadbox/internal/model"
	"github.com/hitoshi/leadbox/internal/repository"
)

// レスポンスのconvertkitStatus
const (
	ConvertKitStatusSuccess = "success"
	ConvertKitStatusPartial = "partial"
)

// ErrStorageUnavailable はリポジトリが構成されていない場合に返される。
var ErrStorageUnavailable = errors.New("subscriber storage is not configured")

// Forwarder はメーリングリストへの転送を行う。
// 失敗はエラーではなくResultとして返す。
type Forwarder interface {
	Subscribe(ctx context.Context, email, name string) convertkit.Result
}

// Metadata はリクエストから取得する付加情報。
type Metadata struct {
	UserAgent string
	Referrer  string
}

// Outcome は受付完了時の結果。
type Outcome struct {
	Subscriber       *model.Subscriber
	ConvertKitStatus string
}

// Service は購読受付のサービス層。
// 検証、重複確認、転送、保存を順に行い、最初の失敗で打ち切る。
type Service struct {
	repo      repository.SubscriberRepository
	forwarder Forwarder
	validator *Validator
	metrics   metrics.MetricsCollector
	now       func() time.Time
}

// NewService はServiceを生成する。
// repoがnilの場合、Readyはfalseを返し、各操作はErrStorageUnavailableを返す。
func NewService(
	repo repository.SubscriberRepository,
	forwarder Forwarder,
	validator *Validator,
	collector metrics.MetricsCollector,
) *Service {
	if collector == nil {
		collector = metrics.Nop{}
	}
	if validator == nil {
		validator = NewValidator(nil)
	}
	return &Service{
		repo:      repo,
		forwarder: forwarder,
		validator: validator,
		metrics:   collector,
		now:       time.Now,
	}
}

// Ready はリポジトリが構成されているかを返す。
func (s *Service) Ready() bool {
	return s.repo != nil
}

// Subscribe は購読申込を受け付ける。
//
// 転送の失敗は受付を失敗させず、convertKitStatus=errorとして保存したうえで
// ConvertKitStatusPartialを返す。
func (s *Service) Subscribe(ctx context.Context, req *Request, meta Metadata) (*Outcome, error) {
	if s.repo == nil {
		return nil, ErrStorageUnavailable
	}

	req = s.validator.Normalize(req)
	if err := s.validator.Validate(req); err != nil {
		return nil, err
	}
	// 保存内容は変えず、運用者が気付けるよう記録だけ残す
	if fields := s.validator.MarkupFields(req); len(fields) > 0 {
		slog.WarnContext(ctx, "subscription contains HTML markup; stored as submitted",
			slog.Any("fields", fields),
			slog.String("source", req.Source),
		)
	}

	exists, err := s.repo.Exists(ctx, req.Email)
	if err != nil {
		return nil, fmt.Errorf("購読者の存在確認に失敗しました: %w", err)
	}
	if exists {
		return nil, model.NewDuplicateSubscriberError()
	}

	sub := &model.Subscriber{
		Email:     req.Email,
		Name:      req.Name,
		Source:    req.Source,
		UserAgent: meta.UserAgent,
		Referrer:  meta.Referrer,
	}

	status := s.forward(ctx, sub)

	sub.Timestamp = s.now().UTC()
	if err := s.repo.Append(ctx, sub); err != nil {
		if errors.Is(err, repository.ErrDuplicateSubscriber) {
			return nil, model.NewDuplicateSubscriberError()
		}
		return nil, fmt.Errorf("購読者の保存に失敗しました: %w", err)
	}

	return &Outcome{Subscriber: sub, ConvertKitStatus: status}, nil
}

// forward は転送を1回試行し、結果をsubに記録する。
func (s *Service) forward(ctx context.Context, sub *model.Subscriber) string {
	if s.forwarder == nil {
		sub.ConvertKitStatus = model.ForwardStatusSuccess
		return ConvertKitStatusSuccess
	}

	start := time.Now()
	res := s.forwarder.Subscribe(ctx, sub.Email, sub.Name)

	if res.Success {
		sub.ConvertKitStatus = model.ForwardStatusSuccess
		s.metrics.RecordForward(string(model.ForwardStatusSuccess), time.Since(start))
		return ConvertKitStatusSuccess
	}

	sub.ConvertKitStatus = model.ForwardStatusError
	sub.ConvertKitError = res.Error
	s.metrics.RecordForward(string(model.ForwardStatusError), time.Since(start))
	return ConvertKitStatusPartial
}

// List は購読者一覧を返す。sourceが空の場合は全件を返す。
func (s *Service) List(ctx context.Context, source string) ([]model.Subscriber, error) {
	if s.repo == nil {
		return nil, ErrStorageUnavailable
	}

	var (
		subs []model.Subscriber
		err  error
	)
	if source == "" {
		subs, err = s.repo.ListAll(ctx)
	} else {
		subs, err = s.repo.ListBySource(ctx, source)
	}
	if err != nil {
		return nil, fmt.Errorf("購読者一覧の取得に失敗しました: %w", err)
	}
	return subs, nil
}

// Stats は購読者の集計結果を返す。
func (s *Service) Stats(ctx context.Context) (*model.Stats, error) {
	if s.repo == nil {
		return nil, ErrStorageUnavailable
	}

	stats, err := s.repo.Stats(ctx)
	if err != nil {
		return nil, fmt.Errorf("購読者の集計に失敗しました: %w", err)
	}
	return stats, nil
}
