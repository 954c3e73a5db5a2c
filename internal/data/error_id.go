package data

import "strconv"

// ErrorID identifies the cause of an APIError
type ErrorID int

// General errors
const (
	ErrInternalServerError           ErrorID = 0
	ErrAPIAccessDeactivated          ErrorID = 1
	ErrJSONInvalid                   ErrorID = 2
	ErrAPINameInvalid                ErrorID = 3
	ErrAPIVersionInvalid             ErrorID = 4
	ErrRequestIDInvalid              ErrorID = 5
	ErrRequestTypeMissingOrEmpty     ErrorID = 6
	ErrRequestTypeUnknown            ErrorID = 7
	ErrRequestRequiresAuthentication ErrorID = 8
)

// AuthenticationTokenRequest errors
const (
	ErrTokenRequestDenied               ErrorID = 50
	ErrTokenRequestCurrentlyOngoing     ErrorID = 51
	ErrTokenRequestPluginNameInvalid    ErrorID = 52
	ErrTokenRequestDeveloperNameInvalid ErrorID = 53
	ErrTokenRequestPluginIconInvalid    ErrorID = 54
)

// AuthenticationRequest errors
const (
	ErrAuthenticationTokenMissing           ErrorID = 100
	ErrAuthenticationPluginNameMissing      ErrorID = 101
	ErrAuthenticationPluginDeveloperMissing ErrorID = 102
)

// Model, hotkey and parameter errors
const (
	ErrModelIDMissing                   ErrorID = 150
	ErrModelIDInvalid                   ErrorID = 151
	ErrModelIDNotFound                  ErrorID = 152
	ErrModelLoadCooldownNotOver         ErrorID = 153
	ErrCannotCurrentlyChangeModel       ErrorID = 154
	ErrHotkeyQueueFull                  ErrorID = 200
	ErrHotkeyExecutionFailedNoModel     ErrorID = 201
	ErrHotkeyIDNotFoundInModel          ErrorID = 202
	ErrHotkeyCooldownNotOver            ErrorID = 203
	ErrHotkeyIDFoundButDataInvalid      ErrorID = 204
	ErrHotkeyExecutionFailedBadState    ErrorID = 205
	ErrHotkeyUnknownExecutionFailure    ErrorID = 206
	ErrColorTintRequestNoModelLoaded    ErrorID = 250
	ErrColorTintMatchOrColorMissing     ErrorID = 251
	ErrColorTintInvalidColorValue       ErrorID = 252
	ErrMoveModelRequestNoModelLoaded    ErrorID = 300
	ErrMoveModelRequestMissingFields    ErrorID = 301
	ErrMoveModelRequestValuesOutOfRange ErrorID = 302
	ErrCustomParamNameInvalid           ErrorID = 350
	ErrCustomParamValuesInvalid         ErrorID = 351
	ErrCustomParamAlreadyCreated        ErrorID = 352
	ErrCustomParamExplanationTooLong    ErrorID = 353
	ErrCustomParamDefaultNameNotAllowed ErrorID = 354
	ErrCustomParamLimitPerPlugin        ErrorID = 355
	ErrCustomParamLimitTotal            ErrorID = 356
	ErrInjectDataNoDataProvided         ErrorID = 450
	ErrInjectDataValueInvalid           ErrorID = 451
	ErrInjectDataWeightInvalid          ErrorID = 452
	ErrInjectDataParamNameNotFound      ErrorID = 453
	ErrInjectDataParamControlledByOther ErrorID = 454
	ErrParameterValueNotFound           ErrorID = 500
)

var errorNames = map[ErrorID]string{
	ErrInternalServerError:                  "InternalServerError",
	ErrAPIAccessDeactivated:                 "APIAccessDeactivated",
	ErrJSONInvalid:                          "JSONInvalid",
	ErrAPINameInvalid:                       "APINameInvalid",
	ErrAPIVersionInvalid:                    "APIVersionInvalid",
	ErrRequestIDInvalid:                     "RequestIDInvalid",
	ErrRequestTypeMissingOrEmpty:            "RequestTypeMissingOrEmpty",
	ErrRequestTypeUnknown:                   "RequestTypeUnknown",
	ErrRequestRequiresAuthentication:        "RequestRequiresAuthentication",
	ErrTokenRequestDenied:                   "TokenRequestDenied",
	ErrTokenRequestCurrentlyOngoing:         "TokenRequestCurrentlyOngoing",
	ErrTokenRequestPluginNameInvalid:        "TokenRequestPluginNameInvalid",
	ErrTokenRequestDeveloperNameInvalid:     "TokenRequestDeveloperNameInvalid",
	ErrTokenRequestPluginIconInvalid:        "TokenRequestPluginIconInvalid",
	ErrAuthenticationTokenMissing:           "AuthenticationTokenMissing",
	ErrAuthenticationPluginNameMissing:      "AuthenticationPluginNameMissing",
	ErrAuthenticationPluginDeveloperMissing: "AuthenticationPluginDeveloperMissing",
	ErrModelIDMissing:                       "ModelIDMissing",
	ErrModelIDInvalid:                       "ModelIDInvalid",
	ErrModelIDNotFound:                      "ModelIDNotFound",
	ErrModelLoadCooldownNotOver:             "ModelLoadCooldownNotOver",
	ErrCannotCurrentlyChangeModel:           "CannotCurrentlyChangeModel",
	ErrHotkeyQueueFull:                      "HotkeyQueueFull",
	ErrHotkeyExecutionFailedNoModel:         "HotkeyExecutionFailedBecauseNoModelLoaded",
	ErrHotkeyIDNotFoundInModel:              "HotkeyIDNotFoundInModel",
	ErrHotkeyCooldownNotOver:                "HotkeyCooldownNotOver",
	ErrHotkeyIDFoundButDataInvalid:          "HotkeyIDFoundButHotkeyDataInvalid",
	ErrHotkeyExecutionFailedBadState:        "HotkeyExecutionFailedBecauseBadState",
	ErrHotkeyUnknownExecutionFailure:        "HotkeyUnknownExecutionFailure",
	ErrColorTintRequestNoModelLoaded:        "ColorTintRequestNoModelLoaded",
	ErrColorTintMatchOrColorMissing:         "ColorTintRequestMatchOrColorMissing",
	ErrColorTintInvalidColorValue:           "ColorTintRequestInvalidColorValue",
	ErrMoveModelRequestNoModelLoaded:        "MoveModelRequestNoModelLoaded",
	ErrMoveModelRequestMissingFields:        "MoveModelRequestMissingFields",
	ErrMoveModelRequestValuesOutOfRange:     "MoveModelRequestValuesOutOfRange",
	ErrCustomParamNameInvalid:               "CustomParamNameInvalid",
	ErrCustomParamValuesInvalid:             "CustomParamValuesInvalid",
	ErrCustomParamAlreadyCreated:            "CustomParamAlreadyCreatedByOtherPlugin",
	ErrCustomParamExplanationTooLong:        "CustomParamExplanationTooLong",
	ErrCustomParamDefaultNameNotAllowed:     "CustomParamDefaultParamNameNotAllowed",
	ErrCustomParamLimitPerPlugin:            "CustomParamLimitPerPluginExceeded",
	ErrCustomParamLimitTotal:                "CustomParamLimitTotalExceeded",
	ErrInjectDataNoDataProvided:             "InjectDataNoDataProvided",
	ErrInjectDataValueInvalid:               "InjectDataValueInvalid",
	ErrInjectDataWeightInvalid:              "InjectDataWeightInvalid",
	ErrInjectDataParamNameNotFound:          "InjectDataParamNameNotFound",
	ErrInjectDataParamControlledByOther:     "InjectDataParamControlledByOtherPlugin",
	ErrParameterValueNotFound:               "ParameterValueRequestParameterNotFound",
}

// Name returns the API's name for the error, or "" for unknown ids
func (id ErrorID) Name() string {
	return errorNames[id]
}

// String formats the id with its name, e.g. "8 (RequestRequiresAuthentication)"
func (id ErrorID) String() string {
	if name := id.Name(); name != "" {
		return strconv.Itoa(int(id)) + " (" + name + ")"
	}
	return strconv.Itoa(int(id))
}

// IsUnauthenticated reports whether id is ErrRequestRequiresAuthentication
func (id ErrorID) IsUnauthenticated() bool {
	return id == ErrRequestRequiresAuthentication
}
