package simulator

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"campus-lostfound/internal/models"
	"campus-lostfound/internal/utils"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var messageTemplates = []string{
	"I think I found your student card near the library",
	"Is the black umbrella in room 204 yours?",
	"Left my water bottle in the gym, has anyone seen it?",
	"I can drop the keys at the front desk tomorrow",
	"Thanks so much, that is exactly my wallet",
	"Which building did you lose it in?",
	"我在食堂捡到一把钥匙",
	"Can you describe the phone case?",
}

// blockedSample is sent now and then to exercise moderation.
const blockedSample = "hand it over you stupid idiot"

// SimulateActivities sends, reads and recalls messages until ctx is done.
func (s *EnhancedSimulator) SimulateActivities(ctx context.Context) {
	ticker := time.NewTicker(s.config.TickInterval)
	defer ticker.Stop()

	perTick := s.config.TickInterval.Minutes()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.mu.RLock()
			users := s.users
			s.mu.RUnlock()
			for _, user := range users {
				if len(user.Conversations) == 0 {
					continue
				}
				if s.chance(s.config.MessageFrequency * perTick) {
					s.simulateMessage(ctx, user)
				}
				if s.chance(s.config.ReadFrequency * perTick) {
					s.simulateRead(ctx, user)
				}
			}
		}
	}
}

func (s *EnhancedSimulator) randomConversation(user *SimulatedUser) uuid.UUID {
	return user.Conversations[s.intn(len(user.Conversations))]
}

func (s *EnhancedSimulator) simulateMessage(ctx context.Context, user *SimulatedUser) {
	conv := s.randomConversation(user)
	content := messageTemplates[s.intn(len(messageTemplates))]
	if s.chance(s.config.RejectPercentage) {
		content = blockedSample
	}

	body, err := s.makeRequest(ctx, user, http.MethodPost, "/api/conversations/"+conv.String()+"/messages",
		map[string]string{"content": content})
	if err != nil {
		var reqErr *requestError
		if errors.As(err, &reqErr) && reqErr.Code == utils.ErrContentRejected {
			s.stats.mu.Lock()
			s.stats.RejectedMessages++
			s.stats.mu.Unlock()
			return
		}
		if ctx.Err() == nil {
			s.logger.Debug("send failed", zap.String("user", user.Username), zap.Error(err))
		}
		return
	}

	s.stats.mu.Lock()
	s.stats.TotalMessages++
	s.stats.mu.Unlock()

	if !s.chance(s.config.RecallPercentage) {
		return
	}
	var sent models.MessageView
	if err := json.Unmarshal(body, &sent); err != nil {
		return
	}
	if _, err := s.makeRequest(ctx, user, http.MethodPut, "/api/messages/"+sent.ID.String()+"/recall", nil); err == nil {
		s.stats.mu.Lock()
		s.stats.Recalls++
		s.stats.mu.Unlock()
	}
}

func (s *EnhancedSimulator) simulateRead(ctx context.Context, user *SimulatedUser) {
	conv := s.randomConversation(user)
	if _, err := s.makeRequest(ctx, user, http.MethodGet, "/api/conversations/"+conv.String()+"/messages", nil); err != nil {
		return
	}
	s.stats.mu.Lock()
	s.stats.Reads++
	s.stats.mu.Unlock()
}
