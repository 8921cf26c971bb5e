package validate

// IncomeTier buckets annual income in rupees.
func IncomeTier(income float64) string {
	switch {
	case income < 300_000:
		return "Low"
	case income < 600_000:
		return "Lower-Middle"
	case income < 1_200_000:
		return "Middle"
	case income < 2_400_000:
		return "Upper-Middle"
	case income < 5_000_000:
		return "High"
	default:
		return "Affluent"
	}
}

// CreditTier buckets a bureau score.
func CreditTier(score int) string {
	switch {
	case score < 550:
		return "Poor"
	case score < 650:
		return "Fair"
	case score < 750:
		return "Good"
	default:
		return "Excellent"
	}
}

// ValueTier combines income (per lakh) and a tenth of the credit score.
func ValueTier(income float64, score int) string {
	value := income/100_000 + float64(score)/10
	switch {
	case value > 200:
		return "Platinum"
	case value > 150:
		return "Gold"
	case value > 100:
		return "Silver"
	default:
		return "Bronze"
	}
}
