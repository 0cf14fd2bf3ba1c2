package quotautils

import "math"

type Statistics struct {
	QuotaCount       int
	OwnerCount       int
	ReservationCount int
	ReservedBytes    int
}

func (s *Statistics) Clear() {
	s.QuotaCount = 0
	s.OwnerCount = 0
	s.ReservationCount = 0
	s.ReservedBytes = 0
}

func (s *Statistics) AddStatistics(other *Statistics) {
	s.QuotaCount += other.QuotaCount
	s.OwnerCount += other.OwnerCount
	s.ReservationCount += other.ReservationCount
	s.ReservedBytes += other.ReservedBytes
}

type DetailedStatistics struct {
	Statistics
	SweepCount         int
	ReservationSizeMin int
	ReservationSizeMax int
}

func (s *DetailedStatistics) Clear() {
	s.Statistics.Clear()
	s.SweepCount = 0
	s.ReservationSizeMin = math.MaxInt
	s.ReservationSizeMax = 0
}

func (s *DetailedStatistics) AddReservation(size int) {
	s.ReservationCount++
	s.ReservedBytes += size

	if size < s.ReservationSizeMin {
		s.ReservationSizeMin = size
	}

	if size > s.ReservationSizeMax {
		s.ReservationSizeMax = size
	}
}

func (s *DetailedStatistics) AddDetailedStatistics(other *DetailedStatistics) {
	s.Statistics.AddStatistics(&other.Statistics)
	s.SweepCount += other.SweepCount

	if other.ReservationSizeMin < s.ReservationSizeMin {
		s.ReservationSizeMin = other.ReservationSizeMin
	}

	if other.ReservationSizeMax > s.ReservationSizeMax {
		s.ReservationSizeMax = other.ReservationSizeMax
	}
}
