package models

// Request statuses.
const (
	StatusPending    = "PENDING"
	StatusAccepted   = "ACCEPTED"
	StatusInProgress = "IN_PROGRESS"
	StatusCompleted  = "COMPLETED"
	StatusCancelled  = "CANCELLED"
	StatusRejected   = "REJECTED"
)

// User roles.
const (
	RoleEndUser  = "END_USER"
	RoleMechanic = "MECHANIC"
	RoleAdmin    = "ADMIN"
)

// Service types.
const (
	ServiceTowing             = "TOWING"
	ServiceFlatTire           = "FLAT_TIRE"
	ServiceBatteryJumpStart   = "BATTERY_JUMP_START"
	ServiceFuelDelivery       = "FUEL_DELIVERY"
	ServiceLockout            = "LOCKOUT"
	ServiceEngineTrouble      = "ENGINE_TROUBLE"
	ServiceAccidentAssistance = "ACCIDENT_ASSISTANCE"
	ServiceOther              = "OTHER"
)

// Vehicle types.
const (
	VehicleCar        = "CAR"
	VehicleMotorcycle = "MOTORCYCLE"
	VehicleSUV        = "SUV"
	VehicleTruck      = "TRUCK"
	VehicleVan        = "VAN"
	VehicleBus        = "BUS"
	VehicleOther      = "OTHER"
)

const (
	// DefaultMaxDistanceKm радиус поиска заявок по умолчанию
	DefaultMaxDistanceKm = 50.0

	// DefaultPageSize размер страницы по умолчанию
	DefaultPageSize = 10

	// MaxPageSize верхняя граница размера страницы
	MaxPageSize = 100

	// MaxImagesPerRequest максимальное число фотографий в заявке
	MaxImagesPerRequest = 5

	// AverageSpeedKmh средняя скорость для оценки времени в пути
	AverageSpeedKmh = 40.0

	// RequestIDPrefix префикс человекочитаемого номера заявки
	RequestIDPrefix = "SR"
)
