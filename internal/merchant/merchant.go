// Package merchant wraps store.MerchantRepository with the validation
// and error-taxonomy conventions the rest of the service layer uses,
// supporting Transaction.merchant_id display-name resolution (SPEC_FULL
// "Merchant / payment-ref" module).
package merchant

import (
	"context"

	"github.com/google/uuid"

	"chatpay-core/internal/apperr"
	"chatpay-core/internal/parser"
	"chatpay-core/internal/store"
)

type Service struct {
	merchants *store.MerchantRepository
}

func NewService(merchants *store.MerchantRepository) *Service {
	return &Service{merchants: merchants}
}

func (s *Service) Register(ctx context.Context, name, phone string) (*store.Merchant, error) {
	validPhone, err := parser.ValidatePhone(phone)
	if err != nil {
		return nil, err
	}
	m := &store.Merchant{ID: uuid.New().String(), Name: name, Phone: validPhone}
	if err := s.merchants.Register(ctx, m); err != nil {
		return nil, apperr.Wrap(err)
	}
	return m, nil
}

func (s *Service) Lookup(ctx context.Context, phone string) (*store.Merchant, error) {
	m, err := s.merchants.GetByPhone(ctx, phone)
	if err != nil {
		if err == store.ErrNotFound {
			return nil, nil
		}
		return nil, apperr.Wrap(err)
	}
	return m, nil
}
