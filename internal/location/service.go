// Package location sends the shop's map pin and entrance video.
package location

import "context"

type Messenger interface {
	SendLocation(ctx context.Context, chatID string, lat, lon float64) bool
	SendVideo(ctx context.Context, chatID, videoURL, caption string) bool
}

type Info struct {
	Latitude     float64
	Longitude    float64
	VideoURL     string
	ScheduleText string
	ContactPhone string
}

type Service struct {
	msg  Messenger
	info Info
}

func NewService(msg Messenger, info Info) *Service {
	return &Service{msg: msg, info: info}
}

// SendDetails sends the pin and the entrance video. Schedule and phone are
// covered by their own menu buttons.
func (s *Service) SendDetails(ctx context.Context, chatID string) {
	s.msg.SendLocation(ctx, chatID, s.info.Latitude, s.info.Longitude)
	s.msg.SendVideo(ctx, chatID, s.info.VideoURL, "Ось наш вхід, щоб легше знайти!")
}
