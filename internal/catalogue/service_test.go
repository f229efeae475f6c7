package catalogue_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/MrJamesThe3rd/medtrain/internal/catalogue"
)

func TestService_Course(t *testing.T) {
	type testCase struct {
		name       string
		setupMock  func(m *catalogue.MockRepository)
		wantPrice  int64
		wantActive bool
		wantErr    error
	}

	base := &catalogue.Course{ID: "bls", Code: "BLS", Price: 9500, Active: true, Delivery: catalogue.DeliveryLive}

	tests := []testCase{
		{
			name: "NoOverrides",
			setupMock: func(m *catalogue.MockRepository) {
				m.EXPECT().GetCourse(gomock.Any(), "bls").Return(base, nil)
				m.EXPECT().GetSettings(gomock.Any(), "bls").Return(nil, nil)
			},
			wantPrice:  9500,
			wantActive: true,
		},
		{
			name: "OverridesApplied",
			setupMock: func(m *catalogue.MockRepository) {
				m.EXPECT().GetCourse(gomock.Any(), "bls").Return(base, nil)
				m.EXPECT().GetSettings(gomock.Any(), "bls").Return(&catalogue.Settings{
					Price:  new(int64(12000)),
					Active: new(false),
				}, nil)
			},
			wantPrice:  12000,
			wantActive: false,
		},
		{
			name: "NotFound",
			setupMock: func(m *catalogue.MockRepository) {
				m.EXPECT().GetCourse(gomock.Any(), "bls").Return(nil, catalogue.ErrCourseNotFound)
			},
			wantErr: catalogue.ErrCourseNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			defer ctrl.Finish()

			repo := catalogue.NewMockRepository(ctrl)
			tt.setupMock(repo)

			got, err := catalogue.NewService(repo).Course(context.Background(), "bls")
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.wantPrice, got.Price)
			assert.Equal(t, tt.wantActive, got.Active)
			assert.Equal(t, int64(9500), base.Price, "stored course must not be mutated")
		})
	}
}

func TestService_Courses_ActiveOnly(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	repo := catalogue.NewMockRepository(ctrl)
	repo.EXPECT().ListCourses(gomock.Any()).Return([]*catalogue.Course{
		{ID: "a", Active: true},
		{ID: "b", Active: true},
		{ID: "c", Active: false},
	}, nil)
	repo.EXPECT().ListSettings(gomock.Any()).Return(map[string]*catalogue.Settings{
		"b": {Active: new(false)},
		"c": {Active: new(true)},
	}, nil)

	got, err := catalogue.NewService(repo).Courses(context.Background(), true)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "a", got[0].ID)
	assert.Equal(t, "c", got[1].ID)
}

func TestService_UpdateSettings(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	repo := catalogue.NewMockRepository(ctrl)
	repo.EXPECT().GetCourse(gomock.Any(), "bls").Return(&catalogue.Course{ID: "bls", Price: 9500, Active: true}, nil)
	repo.EXPECT().GetSettings(gomock.Any(), "bls").Return(&catalogue.Settings{Price: new(int64(11000))}, nil)
	repo.EXPECT().
		SaveSettings(gomock.Any(), "bls", gomock.Any()).
		DoAndReturn(func(_ context.Context, _ string, st *catalogue.Settings) error {
			assert.Equal(t, int64(11000), *st.Price)
			assert.Equal(t, "FIN-42", *st.FinanceCode)
			assert.Equal(t, "admin", st.UpdatedBy)

			return nil
		})

	got, err := catalogue.NewService(repo).UpdateSettings(context.Background(), "bls", catalogue.SettingsParams{
		FinanceCode: new(" FIN-42 "),
		Actor:       "admin",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(11000), got.Price)
	assert.Equal(t, "FIN-42", got.FinanceCode)
}

func TestService_UpdateSettings_NegativePrice(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	_, err := catalogue.NewService(catalogue.NewMockRepository(ctrl)).
		UpdateSettings(context.Background(), "bls", catalogue.SettingsParams{Price: new(int64(-1))})
	assert.ErrorIs(t, err, catalogue.ErrInvalidPrice)
}

func TestService_ImportSessions_RejectsMovingSessionToAnotherCourse(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	repo := catalogue.NewMockRepository(ctrl)
	repo.EXPECT().GetCourseByCode(gomock.Any(), "ALS").
		Return(&catalogue.Course{ID: "als", Code: "ALS", Delivery: catalogue.DeliveryLive}, nil)
	repo.EXPECT().GetSession(gomock.Any(), "bls-1").
		Return(&catalogue.Session{ID: "bls-1", CourseID: "bls"}, nil)
	repo.EXPECT().UpsertSessions(gomock.Any(), gomock.Any()).Times(0)

	got, err := catalogue.NewService(repo).ImportSessions(context.Background(), []catalogue.SessionParams{
		{ID: "bls-1", CourseCode: "ALS", StartsAt: time.Date(2026, 11, 3, 9, 30, 0, 0, time.UTC)},
	})
	assert.Nil(t, got)
	assert.ErrorIs(t, err, catalogue.ErrSessionMoved)
	assert.ErrorContains(t, err, "row 1")
}

func TestService_ImportSessions_RescheduleKeepsSessionID(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	moved := time.Date(2026, 11, 4, 13, 0, 0, 0, time.UTC)

	repo := catalogue.NewMockRepository(ctrl)
	repo.EXPECT().GetCourseByCode(gomock.Any(), "BLS").
		Return(&catalogue.Course{ID: "bls", Code: "BLS", Delivery: catalogue.DeliveryLive, DurationMinutes: 180}, nil)
	repo.EXPECT().GetSession(gomock.Any(), "bls-1").
		Return(&catalogue.Session{ID: "bls-1", CourseID: "bls", StartsAt: moved.Add(-28 * time.Hour)}, nil)
	repo.EXPECT().UpsertSessions(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, sessions []*catalogue.Session) error {
			require.Len(t, sessions, 1)
			assert.Equal(t, "bls-1", sessions[0].ID)
			assert.Equal(t, "bls", sessions[0].CourseID)
			assert.True(t, moved.Equal(sessions[0].StartsAt))

			return nil
		})

	got, err := catalogue.NewService(repo).ImportSessions(context.Background(), []catalogue.SessionParams{
		{ID: "bls-1", CourseCode: "BLS", StartsAt: moved, Capacity: 10},
	})
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestService_ImportSessions(t *testing.T) {
	start := time.Date(2026, 11, 3, 9, 30, 0, 0, time.UTC)

	type args struct {
		params []catalogue.SessionParams
	}

	type testCase struct {
		name      string
		args      args
		setupMock func(m *catalogue.MockRepository)
		wantIDs   []string
		wantErr   bool
	}

	tests := []testCase{
		{
			name: "DerivesIDsAndDefaults",
			args: args{params: []catalogue.SessionParams{
				{CourseCode: "BLS", StartsAt: start, Capacity: 12},
				{ID: "custom", CourseCode: "BLS", StartsAt: start.Add(24 * time.Hour), DurationMinutes: 90},
			}},
			setupMock: func(m *catalogue.MockRepository) {
				m.EXPECT().GetCourseByCode(gomock.Any(), "BLS").
					Return(&catalogue.Course{ID: "bls", Code: "BLS", Delivery: catalogue.DeliveryLive, DurationMinutes: 180}, nil).
					Times(1)
				m.EXPECT().GetSession(gomock.Any(), "bls-202611030930").Return(nil, catalogue.ErrSessionNotFound)
				m.EXPECT().GetSession(gomock.Any(), "custom").Return(&catalogue.Session{ID: "custom", CourseID: "bls"}, nil)
				m.EXPECT().
					UpsertSessions(gomock.Any(), gomock.Any()).
					DoAndReturn(func(_ context.Context, sessions []*catalogue.Session) error {
						assert.Equal(t, 180, sessions[0].DurationMinutes)
						assert.Equal(t, 12, sessions[0].SpotsRemaining)
						assert.Equal(t, 90, sessions[1].DurationMinutes)

						return nil
					})
			},
			wantIDs: []string{"bls-202611030930", "custom"},
		},
		{
			name: "ELearningRejected",
			args: args{params: []catalogue.SessionParams{{CourseCode: "IG", StartsAt: start}}},
			setupMock: func(m *catalogue.MockRepository) {
				m.EXPECT().GetCourseByCode(gomock.Any(), "IG").
					Return(&catalogue.Course{ID: "ig", Code: "IG", Delivery: catalogue.DeliveryELearning}, nil)
			},
			wantErr: true,
		},
		{
			name: "UnknownCourse",
			args: args{params: []catalogue.SessionParams{{CourseCode: "NOPE", StartsAt: start}}},
			setupMock: func(m *catalogue.MockRepository) {
				m.EXPECT().GetCourseByCode(gomock.Any(), "NOPE").Return(nil, catalogue.ErrCourseNotFound)
			},
			wantErr: true,
		},
		{
			name: "StoreError",
			args: args{params: []catalogue.SessionParams{{CourseCode: "BLS", StartsAt: start}}},
			setupMock: func(m *catalogue.MockRepository) {
				m.EXPECT().GetCourseByCode(gomock.Any(), "BLS").
					Return(&catalogue.Course{ID: "bls", Code: "BLS", Delivery: catalogue.DeliveryLive}, nil)
				m.EXPECT().GetSession(gomock.Any(), gomock.Any()).Return(nil, catalogue.ErrSessionNotFound)
				m.EXPECT().UpsertSessions(gomock.Any(), gomock.Any()).Return(errors.New("db error"))
			},
			wantErr: true,
		},
		{
			name: "SessionLookupError",
			args: args{params: []catalogue.SessionParams{{CourseCode: "BLS", StartsAt: start}}},
			setupMock: func(m *catalogue.MockRepository) {
				m.EXPECT().GetCourseByCode(gomock.Any(), "BLS").
					Return(&catalogue.Course{ID: "bls", Code: "BLS", Delivery: catalogue.DeliveryLive}, nil)
				m.EXPECT().GetSession(gomock.Any(), gomock.Any()).Return(nil, errors.New("db error"))
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			defer ctrl.Finish()

			repo := catalogue.NewMockRepository(ctrl)
			tt.setupMock(repo)

			got, err := catalogue.NewService(repo).ImportSessions(context.Background(), tt.args.params)
			if tt.wantErr {
				assert.Error(t, err)
				assert.Nil(t, got)

				return
			}

			require.NoError(t, err)

			ids := make([]string, 0, len(got))
			for _, s := range got {
				ids = append(ids, s.ID)
			}

			assert.Equal(t, tt.wantIDs, ids)
		})
	}
}

func TestSession_EndsAt(t *testing.T) {
	s := catalogue.Session{StartsAt: time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC), DurationMinutes: 150}
	assert.Equal(t, time.Date(2026, 1, 1, 11, 30, 0, 0, time.UTC), s.EndsAt())
}
