package services

import (
	"visit-verify-system/utils"
)

// LoadFraudConfig reads the detector thresholds from the environment,
// falling back to the shipped defaults.
func LoadFraudConfig() FraudConfig {
	return FraudConfig{
		MinSubmissionInterval: utils.EnvSeconds("FRAUD_MIN_INTERVAL_SECONDS", DefaultFraudConfig.MinSubmissionInterval),
		MaxDailySubmissions:   utils.EnvInt64("FRAUD_MAX_DAILY_SUBMISSIONS", DefaultFraudConfig.MaxDailySubmissions),
		MaxTravelSpeedKmh:     utils.EnvFloat("FRAUD_MAX_TRAVEL_SPEED_KMH", DefaultFraudConfig.MaxTravelSpeedKmh),
		HighTravelSpeedKmh:    utils.EnvFloat("FRAUD_HIGH_TRAVEL_SPEED_KMH", DefaultFraudConfig.HighTravelSpeedKmh),
		MinPlausibleAccuracy:  utils.EnvFloat("FRAUD_MIN_PLAUSIBLE_ACCURACY", DefaultFraudConfig.MinPlausibleAccuracy),
		PatternWindow:         utils.EnvInt("FRAUD_PATTERN_WINDOW", DefaultFraudConfig.PatternWindow),
		PatternThreshold:      utils.EnvInt("FRAUD_PATTERN_THRESHOLD", DefaultFraudConfig.PatternThreshold),
	}
}

// LoadRadiusConfig reads the accuracy bands from the environment.
func LoadRadiusConfig() RadiusConfig {
	return RadiusConfig{
		GPSAccuracyMax:     utils.EnvFloat("RADIUS_GPS_ACCURACY_MAX", DefaultRadiusConfig.GPSAccuracyMax),
		NetworkAccuracyMax: utils.EnvFloat("RADIUS_NETWORK_ACCURACY_MAX", DefaultRadiusConfig.NetworkAccuracyMax),
	}
}
