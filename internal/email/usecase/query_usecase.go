package usecase

import (
	"errors"

	"mailmind/internal/email/domain"
	"mailmind/internal/email/repository"
)

// QueryUsecase is the read side: browsing, searching and aggregate stats
// over the synced mailbox
type QueryUsecase interface {
	ListMessages(filter repository.ListFilter) ([]domain.Message, error)
	GetMessage(id string) (*domain.Message, error)
	Search(query string, limit int) ([]domain.Message, error)
	PriorityMessages(limit int) ([]domain.Message, error)
	Stats() (*domain.MailboxStats, error)
}

type queryUsecase struct {
	messageRepo repository.MessageRepository
}

// NewQueryUsecase creates a new instance of queryUsecase
func NewQueryUsecase(messageRepo repository.MessageRepository) QueryUsecase {
	return &queryUsecase{
		messageRepo: messageRepo,
	}
}

func (u *queryUsecase) ListMessages(filter repository.ListFilter) ([]domain.Message, error) {
	if filter.Limit <= 0 || filter.Limit > 200 {
		filter.Limit = 50
	}
	return u.messageRepo.List(filter)
}

func (u *queryUsecase) GetMessage(id string) (*domain.Message, error) {
	msg, err := u.messageRepo.GetByID(id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return msg, nil
}

func (u *queryUsecase) Search(query string, limit int) ([]domain.Message, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	return u.messageRepo.Search(query, limit)
}

func (u *queryUsecase) PriorityMessages(limit int) ([]domain.Message, error) {
	if limit <= 0 || limit > 200 {
		limit = 20
	}
	return u.messageRepo.PriorityMessages(limit)
}

func (u *queryUsecase) Stats() (*domain.MailboxStats, error) {
	return u.messageRepo.Stats()
}
