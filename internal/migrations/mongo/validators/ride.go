package validators

import "go.mongodb.org/mongo-driver/bson"

var RideValidator = bson.M{
	"$jsonSchema": bson.M{
		"bsonType": "object",
		"required": []string{
			"driver_id",
			"origin",
			"destination",
			"departure_time",
			"arrival_time",
			"total_seats",
			"available_seats",
			"status",
			"created_at",
		},
		"additionalProperties": true,

		"properties": bson.M{
			"_id": bson.M{
				"bsonType": "objectId",
			},

			"driver_id": bson.M{
				"bsonType":  "string",
				"minLength": 1,
			},

			"origin": bson.M{
				"bsonType":  "string",
				"minLength": 2,
				"maxLength": 255,
			},

			"destination": bson.M{
				"bsonType":  "string",
				"minLength": 2,
				"maxLength": 255,
			},

			"departure_time": bson.M{
				"bsonType": "date",
			},

			"arrival_time": bson.M{
				"bsonType": "date",
			},

			"total_seats": bson.M{
				"bsonType": "int",
				"minimum":  1,
				"maximum":  50,
			},

			"available_seats": bson.M{
				"bsonType": "int",
				"minimum":  0,
				"maximum":  50,
			},

			"rate_per_km": bson.M{
				"bsonType": []string{"double", "int", "long", "decimal"},
				"minimum":  0,
			},

			"distance_km": bson.M{
				"bsonType": []string{"double", "int", "long", "decimal"},
				"minimum":  0,
			},

			"status": bson.M{
				"bsonType": "string",
				"enum": []string{
					"upcoming",
					"not_started_yet",
					"active",
					"completed",
					"auto_completed",
					"cancelled",
				},
			},

			"created_at": bson.M{
				"bsonType": "date",
			},
		},
	},
}
