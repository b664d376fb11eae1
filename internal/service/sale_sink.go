package service

import (
	"context"

	"github.com/wfunc/vending-machine/internal/models"
	"github.com/wfunc/vending-machine/internal/repository"
	"github.com/wfunc/vending-machine/internal/vending"
)

// SaleSink 把核心的销售事件写进销售记录表
type SaleSink struct {
	repo repository.SaleRepository
}

// NewSaleSink 创建销售落库适配
func NewSaleSink(repo repository.SaleRepository) *SaleSink {
	return &SaleSink{repo: repo}
}

// Record 写一条销售记录，货道号按面板习惯从1起存库
func (s *SaleSink) Record(ctx context.Context, slot int, price, creditAfter vending.Cents) error {
	return s.repo.Create(ctx, &models.SaleRecord{
		Slot:        slot + 1,
		PriceCents:  int64(price),
		CreditAfter: int64(creditAfter),
	})
}
