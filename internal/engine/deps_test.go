package engine

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestResolveDependencies_Python(t *testing.T) {
	script := `
import os
import requests
import numpy as np
from flask import Flask
from collections import defaultdict
import json, pandas
`
	got := ResolveDependencies(script, "python")
	require.Equal(t, []string{"requests", "numpy", "flask", "pandas"}, got)
}

func TestResolveDependencies_PythonAliases(t *testing.T) {
	script := `
import cv2
from PIL import Image
from bs4 import BeautifulSoup
import yaml
import sklearn.linear_model
`
	got := ResolveDependencies(script, "python")
	require.Equal(t, []string{"opencv-python", "Pillow", "beautifulsoup4", "PyYAML", "scikit-learn"}, got)
}

func TestResolveDependencies_MixedStylesKeepDocumentOrder(t *testing.T) {
	python := `
from flask import Flask
import requests
from sqlalchemy import create_engine
import numpy
`
	require.Equal(t,
		[]string{"flask", "requests", "sqlalchemy", "numpy"},
		ResolveDependencies(python, "python"))

	javascript := `
import express from 'express';
const axios = require('axios');
const mod = await import('chalk');
const lodash = require('lodash');
`
	require.Equal(t,
		[]string{"express", "axios", "chalk", "lodash"},
		ResolveDependencies(javascript, "javascript"))
}

func TestResolveDependencies_PythonDeduplicates(t *testing.T) {
	script := `
import requests
from requests import Session
import requests.exceptions
`
	got := ResolveDependencies(script, "python")
	require.Equal(t, []string{"requests"}, got)
}

func TestResolveDependencies_PythonStdlibOnly(t *testing.T) {
	script := `
import os
import sys
from datetime import datetime
import json
`
	require.Empty(t, ResolveDependencies(script, "python"))
}

func TestResolveDependencies_JavaScript(t *testing.T) {
	script := `
const axios = require('axios');
const fs = require('fs');
import express from "express";
import { get } from 'lodash/fp';
import '@scope/pkg/sub';
const mod = await import('chalk');
`
	got := ResolveDependencies(script, "javascript")
	require.Equal(t, []string{"axios", "express", "lodash", "@scope/pkg", "chalk"}, got)
}

func TestResolveDependencies_JavaScriptBuiltins(t *testing.T) {
	script := `
const fs = require('fs');
const path = require('node:path');
const local = require('./helper');
`
	require.Empty(t, ResolveDependencies(script, "javascript"))
}

func TestResolveDependencies_UnknownLanguage(t *testing.T) {
	require.Nil(t, ResolveDependencies("import foo", "ruby"))
}

func TestResolveDependencies_LanguageAliases(t *testing.T) {
	require.Equal(t, []string{"requests"}, ResolveDependencies("import requests", "python3"))
	require.Equal(t, []string{"axios"}, ResolveDependencies("const a = require('axios')", "node"))
}
