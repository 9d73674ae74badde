package validators

import "go.mongodb.org/mongo-driver/bson"

var BookingValidator = bson.M{
	"$jsonSchema": bson.M{
		"bsonType": "object",
		"required": []string{
			"ride_id",
			"passenger_id",
			"seat_count",
			"status",
			"trip_status",
			"seats_held",
			"created_at",
		},
		"additionalProperties": true,

		"properties": bson.M{
			"_id": bson.M{
				"bsonType": "objectId",
			},

			"ride_id": bson.M{
				"bsonType":  "string",
				"minLength": 24,
				"maxLength": 24,
			},

			"passenger_id": bson.M{
				"bsonType":  "string",
				"minLength": 1,
			},

			"seat_count": bson.M{
				"bsonType": "int",
				"minimum":  1,
				"maximum":  50,
			},

			"distance_km": bson.M{
				"bsonType": []string{"double", "int", "long", "decimal"},
				"minimum":  0,
			},

			"contribution": bson.M{
				"bsonType": []string{"double", "int", "long", "decimal"},
				"minimum":  0,
			},

			"status": bson.M{
				"bsonType": "string",
				"enum": []string{
					"pending",
					"confirmed",
					"rejected",
					"waitlisted",
					"cancelled",
				},
			},

			"trip_status": bson.M{
				"bsonType": "string",
				"enum": []string{
					"upcoming",
					"active",
					"completed",
					"cancelled",
					"did_not_travel",
				},
			},

			"seats_held": bson.M{
				"bsonType": "bool",
			},

			"created_at": bson.M{
				"bsonType": "date",
			},
		},
	},
}
