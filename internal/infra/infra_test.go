package infra

import (
	"context"
	"testing"

	"autorbi/internal/config"
	"autorbi/internal/logger"
	"autorbi/internal/models"
	"autorbi/internal/testutil"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"golang.org/x/crypto/bcrypt"
)

func TestInitDatabaseSQLite(t *testing.T) {
	logger.Set(zaptest.NewLogger(t))
	t.Cleanup(func() { logger.Set(nil) })

	db, err := InitDatabase(&config.DatabaseConfig{
		Driver:     "sqlite",
		SQLitePath: "file:infra_init?mode=memory&cache=shared",
		SSLMode:    "disable",
	})
	require.NoError(t, err)
	assert.Same(t, db, GetDB())
	assert.NoError(t, HealthCheck())
	assert.NoError(t, CloseDatabase())
}

func TestInitDatabaseUnknownDriver(t *testing.T) {
	logger.Set(zaptest.NewLogger(t))
	t.Cleanup(func() { logger.Set(nil) })

	_, err := InitDatabase(&config.DatabaseConfig{Driver: "oracle"})
	assert.ErrorContains(t, err, "oracle")
}

func TestAsynqRedisOpt(t *testing.T) {
	tests := []struct {
		name string
		cfg  config.RedisConfig
		want interface{}
		err  bool
	}{
		{"默认单节点", config.RedisConfig{Host: "localhost", Port: 6379}, asynq.RedisClientOpt{}, false},
		{"哨兵", config.RedisConfig{Mode: "sentinel", MasterName: "m", SentinelAddrs: []string{"s:26379"}}, asynq.RedisFailoverClientOpt{}, false},
		{"集群", config.RedisConfig{Mode: "cluster", ClusterAddrs: []string{"c:7000"}}, asynq.RedisClusterClientOpt{}, false},
		{"未知模式", config.RedisConfig{Mode: "mesh"}, nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opt, err := AsynqRedisOpt(tt.cfg)
			if tt.err {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.IsType(t, tt.want, opt)
		})
	}
}

func TestHealthCheckRedisNotInitialized(t *testing.T) {
	globalRedis = nil
	assert.Error(t, HealthCheckRedis())
}

func TestSeedAdmin(t *testing.T) {
	db := testutil.NewDB(t)
	log := zaptest.NewLogger(t)
	ctx := context.Background()

	u, err := SeedAdmin(ctx, db, config.SeedConfig{}, log)
	require.NoError(t, err)
	assert.Nil(t, u, "未配置时跳过")

	cfg := config.SeedConfig{AdminUsername: "admin", AdminPassword: "s3cret"}
	u, err = SeedAdmin(ctx, db, cfg, log)
	require.NoError(t, err)
	require.NotNil(t, u)
	assert.Equal(t, models.UserRoleAdmin, u.Role)
	assert.Equal(t, "admin@autorbi.local", u.Email)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte("s3cret")))

	again, err := SeedAdmin(ctx, db, config.SeedConfig{AdminUsername: "admin", AdminPassword: "other"}, log)
	require.NoError(t, err)
	assert.Equal(t, u.ID, again.ID)
	assert.Equal(t, u.PasswordHash, again.PasswordHash)

	var count int64
	require.NoError(t, db.Model(&models.User{}).Count(&count).Error)
	assert.EqualValues(t, 1, count)
}
