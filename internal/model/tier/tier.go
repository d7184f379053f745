package tier

type Tier string

const (
	Bronze Tier = "BRONZE"
	Silver Tier = "SILVER"
	Gold   Tier = "GOLD"
)

const (
	DefaultSilverMin int64 = 50000
	DefaultGoldMin   int64 = 100000
)

// Calculator maps a point total to a tier band. SilverMin must be strictly
// less than GoldMin.
type Calculator struct {
	SilverMin int64
	GoldMin   int64
}

func NewCalculator(silverMin, goldMin int64) Calculator {
	if silverMin <= 0 || goldMin <= silverMin {
		return Calculator{
			SilverMin: DefaultSilverMin,
			GoldMin:   DefaultGoldMin,
		}
	}
	return Calculator{
		SilverMin: silverMin,
		GoldMin:   goldMin,
	}
}

// Calc is total: any signed point count maps to a band, negatives to Bronze.
func (c Calculator) Calc(points int64) Tier {
	switch {
	case points >= c.GoldMin:
		return Gold
	case points >= c.SilverMin:
		return Silver
	default:
		return Bronze
	}
}

// NextTierPoints returns how many points are left until the next band,
// clamped at zero. Gold is terminal.
func (c Calculator) NextTierPoints(t Tier, points int64) int64 {
	var remaining int64
	switch t {
	case Bronze:
		remaining = c.SilverMin - points
	case Silver:
		remaining = c.GoldMin - points
	case Gold:
		return 0
	}
	if remaining < 0 {
		return 0
	}
	return remaining
}
