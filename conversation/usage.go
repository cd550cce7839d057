package conversation

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"botchat/model"
)

// RecordUsage counts one message sent to botID on the day of at.
func (s *Store) RecordUsage(ctx context.Context, botID string, at time.Time) error {
	s.usageMu.Lock()
	defer s.usageMu.Unlock()

	repo := s.opts.Usage
	id := model.UsageID(botID, at)

	rec, found, err := repo.FindByID(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to read usage: %w", err)
	}
	if !found {
		rec = model.UsageRecord{ID: id, BotID: botID, Date: at.Format(model.UsageDateLayout), Count: 1}
		if err := repo.Create(ctx, rec); err != nil {
			return fmt.Errorf("failed to record usage: %w", err)
		}
		return nil
	}

	rec.Count++
	if err := repo.Update(ctx, rec); err != nil {
		return fmt.Errorf("failed to record usage: %w", err)
	}
	return nil
}

// Usage returns the per-day counts of a bot, oldest first.
func (s *Store) Usage(ctx context.Context, botID string) ([]model.UsageRecord, error) {
	all, err := s.opts.Usage.FindAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read usage: %w", err)
	}
	out := []model.UsageRecord{}
	for _, r := range all {
		if r.BotID == botID {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date < out[j].Date })
	return out, nil
}

// AvailableYears lists the years with usage for a bot, newest first.
func (s *Store) AvailableYears(ctx context.Context, botID string) ([]int, error) {
	records, err := s.Usage(ctx, botID)
	if err != nil {
		return nil, err
	}
	seen := make(map[int]bool)
	years := []int{}
	for _, r := range records {
		day, err := time.Parse(model.UsageDateLayout, r.Date)
		if err != nil {
			s.logger.Warn("skipping usage record with bad date", zap.String("date", r.Date))
			continue
		}
		if !seen[day.Year()] {
			seen[day.Year()] = true
			years = append(years, day.Year())
		}
	}
	sort.Sort(sort.Reverse(sort.IntSlice(years)))
	return years, nil
}
