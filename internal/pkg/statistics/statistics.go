package statistics

import (
	"log"
	"strconv"
	"sync"
	"time"

	"github.com/shipnowhq/shipnow/app/models"
	"github.com/shipnowhq/shipnow/internal/pkg/cache"
	"github.com/shipnowhq/shipnow/internal/pkg/database"
)

const (
	CacheKeyUsersTotal        = "statistics:users:total"
	CacheKeySubscriptionsLive = "statistics:subscriptions:live"
	CacheExpiration           = 30 * time.Minute
)

// StatisticsData holds the social-proof numbers shown on the landing page.
type StatisticsData struct {
	TotalUsers        int
	LiveSubscriptions int
}

var (
	lastCacheUpdate     time.Time
	cacheUpdateMutex    sync.Mutex
	cacheUpdateInterval = 5 * time.Minute
)

// ShouldUpdateCache checks whether the cached numbers are older than the
// update interval.
func ShouldUpdateCache() bool {
	cacheUpdateMutex.Lock()
	defer cacheUpdateMutex.Unlock()

	return time.Since(lastCacheUpdate) > cacheUpdateInterval
}

// UpdateCacheIfNeeded refreshes the cache when the interval has passed.
func UpdateCacheIfNeeded() {
	if ShouldUpdateCache() {
		cacheUpdateMutex.Lock()
		defer cacheUpdateMutex.Unlock()

		if err := UpdateStatisticsCache(); err != nil {
			log.Printf("Error updating statistics cache: %v", err)
		} else {
			lastCacheUpdate = time.Now()
		}
	}
}

// UpdateStatisticsCache recounts users and live subscriptions and stores the
// results in the cache.
func UpdateStatisticsCache() error {
	db := database.GetDB()

	var totalUsers int64
	if err := db.Model(&models.User{}).Count(&totalUsers).Error; err != nil {
		log.Printf("Error counting total users: %v", err)
		return err
	}

	var liveSubscriptions int64
	if err := db.Model(&models.Subscription{}).
		Where("status IN ?", []string{models.SubscriptionStatusActive, models.SubscriptionStatusTrialing}).
		Count(&liveSubscriptions).Error; err != nil {
		log.Printf("Error counting live subscriptions: %v", err)
		return err
	}

	if err := cache.Set(CacheKeyUsersTotal, strconv.FormatInt(totalUsers, 10), CacheExpiration); err != nil {
		log.Printf("Error caching total users: %v", err)
		return err
	}

	if err := cache.Set(CacheKeySubscriptionsLive, strconv.FormatInt(liveSubscriptions, 10), CacheExpiration); err != nil {
		log.Printf("Error caching live subscriptions: %v", err)
		return err
	}

	return nil
}

// GetTotalUsers returns the total number of users from cache or database.
func GetTotalUsers() int {
	return readCachedUsers()
}

// GetStatistics returns the current numbers, refreshing the cache when it is
// older than the update interval.
func GetStatistics() StatisticsData {
	UpdateCacheIfNeeded()
	return StatisticsData{
		TotalUsers:        readCachedUsers(),
		LiveSubscriptions: readCachedLiveSubscriptions(),
	}
}

func readCachedUsers() int {
	val, err := cache.Get(CacheKeyUsersTotal)
	if err != nil {
		var count int64
		if err := database.GetDB().Model(&models.User{}).Count(&count).Error; err != nil {
			log.Printf("Error counting total users: %v", err)
			return 0
		}
		if err := cache.Set(CacheKeyUsersTotal, strconv.FormatInt(count, 10), CacheExpiration); err != nil {
			log.Printf("Error caching total users: %v", err)
		}
		return int(count)
	}

	count, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return 0
	}
	return int(count)
}

func readCachedLiveSubscriptions() int {
	val, err := cache.Get(CacheKeySubscriptionsLive)
	if err != nil {
		var count int64
		if err := database.GetDB().Model(&models.Subscription{}).
			Where("status IN ?", []string{models.SubscriptionStatusActive, models.SubscriptionStatusTrialing}).
			Count(&count).Error; err != nil {
			log.Printf("Error counting live subscriptions: %v", err)
			return 0
		}
		if err := cache.Set(CacheKeySubscriptionsLive, strconv.FormatInt(count, 10), CacheExpiration); err != nil {
			log.Printf("Error caching live subscriptions: %v", err)
		}
		return int(count)
	}

	count, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return 0
	}
	return int(count)
}
